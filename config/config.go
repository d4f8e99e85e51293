package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AppName  = "Motorent"
	Revision = "1"
)

var (
	// Build time arguments
	AppVersion  string
	Sha1Version string
	BuildTime   string
)

type Config struct {
	AppName         string          `json:"appName"         yaml:"appName"`
	AppNameDesc     string          `json:"appNameDesc"     yaml:"appNameDesc"`
	AppVersion      string          `json:"appVersion"      yaml:"appVersion"`
	AppVersionDesc  string          `json:"appVersionDesc"  yaml:"appVersionDesc"`
	Sha1Version     string          `json:"sha1Version"     yaml:"sha1Version"`
	Sha1VersionDesc string          `json:"sha1VersionDesc" yaml:"sha1VersionDesc"`
	BuildTime       string          `json:"buildTime"       yaml:"buildTime"`
	BuildTimeDesc   string          `json:"buildTimeDesc"   yaml:"buildTimeDesc"`
	Profile         string          `json:"profile"         yaml:"profile"`
	ProfileDesc     string          `json:"profileDesc"     yaml:"profileDesc"`
	Revision        string          `json:"revision"        yaml:"revision"`
	RevisionDesc    string          `json:"revisionDesc"    yaml:"revisionDesc"`
	Port            string          `json:"port"            yaml:"port"`
	PortDesc        string          `json:"portDesc"        yaml:"portDesc"`
	Config          ConfigSource    `json:"config"          yaml:"config"`
	ConfigDesc      string          `json:"configDesc"      yaml:"configDesc"`
	Log             LogConfig       `json:"log"             yaml:"log"`
	LogDesc         string          `json:"logDesc"         yaml:"logDesc"`
	Db              DbConfig        `json:"db"              yaml:"db"`
	DbDesc          string          `json:"dbDesc"          yaml:"dbDesc"`
	RabbitMQ        QueueConfig     `json:"rabbitmq"        yaml:"rabbitmq"`
	RabbitMQDesc    string          `json:"rabbitmqDesc"    yaml:"rabbitmqDesc"`
	Rental          RentalConfig    `json:"rental"          yaml:"rental"`
	RentalDesc      string          `json:"rentalDesc"      yaml:"rentalDesc"`
	Scheduler       SchedulerConfig `json:"scheduler"       yaml:"scheduler"`
	SchedulerDesc   string          `json:"schedulerDesc"   yaml:"schedulerDesc"`
	Admin           AdminConfig     `json:"admin"           yaml:"admin"`
	AdminDesc       string          `json:"adminDesc"       yaml:"adminDesc"`
}

type ConfigSource struct {
	Print      bool   `json:"print"      yaml:"print"`
	PrintDesc  string `json:"printDesc"  yaml:"printDesc"`
	Name       string `json:"name"       yaml:"name"`
	NameDesc   string `json:"nameDesc"   yaml:"nameDesc"`
	Source     string `json:"source"     yaml:"source"`
	SourceDesc string `json:"sourceDesc" yaml:"sourceDesc"`
}

type LogConfig struct {
	Level          string `json:"level"          yaml:"level"`
	LevelDesc      string `json:"levelDesc"      yaml:"levelDesc"`
	Structured     bool   `json:"structured"     yaml:"structured"`
	StructuredDesc string `json:"structuredDesc" yaml:"structuredDesc"`
}

type DbConfig struct {
	Name         string       `json:"name"         yaml:"name"`
	NameDesc     string       `json:"nameDesc"     yaml:"nameDesc"`
	Host         string       `json:"host"         yaml:"host"`
	HostDesc     string       `json:"hostDesc"     yaml:"hostDesc"`
	Port         string       `json:"port"         yaml:"port"`
	PortDesc     string       `json:"portDesc"     yaml:"portDesc"`
	Migrate      bool         `json:"migrate"      yaml:"migrate"`
	MigrateDesc  string       `json:"migrateDesc"  yaml:"migrateDesc"`
	Clean        bool         `json:"clean"        yaml:"clean"`
	CleanDesc    string       `json:"cleanDesc"    yaml:"cleanDesc"`
	InMemory     bool         `json:"inMemory"     yaml:"inMemory"`
	InMemoryDesc string       `json:"inMemoryDesc" yaml:"inMemoryDesc"`
	User         string       `json:"user"         yaml:"user"`
	UserDesc     string       `json:"userDesc"     yaml:"userDesc"`
	Pass         string       `json:"pass"         yaml:"pass"         sensitive:"true"`
	PassDesc     string       `json:"passDesc"     yaml:"passDesc"`
	Pool         DbPoolConfig `json:"pool"         yaml:"pool"`
	PoolDesc     string       `json:"poolDesc"     yaml:"poolDesc"`
}

type DbPoolConfig struct {
	MinSize     int32  `json:"minSize"     yaml:"minSize"`
	MinSizeDesc string `json:"minSizeDesc" yaml:"minSizeDesc"`
	MaxSize     int32  `json:"maxSize"     yaml:"maxSize"`
	MaxSizeDesc string `json:"maxSizeDesc" yaml:"maxSizeDesc"`
}

type QueueConfig struct {
	Host             string          `json:"host"             yaml:"host"`
	HostDesc         string          `json:"hostDesc"         yaml:"hostDesc"`
	Port             string          `json:"port"             yaml:"port"`
	PortDesc         string          `json:"portDesc"         yaml:"portDesc"`
	User             string          `json:"user"             yaml:"user"`
	UserDesc         string          `json:"userDesc"         yaml:"userDesc"`
	Pass             string          `json:"pass"             yaml:"pass"             sensitive:"true"`
	PassDesc         string          `json:"passDesc"         yaml:"passDesc"`
	Mock             bool            `json:"mock"             yaml:"mock"`
	MockDesc         string          `json:"mockDesc"         yaml:"mockDesc"`
	Transaction      ExchangeConfig  `json:"transaction"      yaml:"transaction"`
	TransactionDesc  string          `json:"transactionDesc"  yaml:"transactionDesc"`
	Notification     ExchangeConfig  `json:"notification"     yaml:"notification"`
	NotificationDesc string          `json:"notificationDesc" yaml:"notificationDesc"`
	Unit             UnitQueueConfig `json:"unit"             yaml:"unit"`
	UnitDesc         string          `json:"unitDesc"         yaml:"unitDesc"`
}

type ExchangeConfig struct {
	Exchange     string `json:"exchange"     yaml:"exchange"`
	ExchangeDesc string `json:"exchangeDesc" yaml:"exchangeDesc"`
}

type UnitQueueConfig struct {
	Queue     string         `json:"queue"     yaml:"queue"`
	QueueDesc string         `json:"queueDesc" yaml:"queueDesc"`
	Dlt       ExchangeConfig `json:"dlt"       yaml:"dlt"`
	DltDesc   string         `json:"dltDesc"   yaml:"dltDesc"`
}

type RentalConfig struct {
	Timezone           string        `json:"timezone"           yaml:"timezone"`
	TimezoneDesc       string        `json:"timezoneDesc"       yaml:"timezoneDesc"`
	PenaltyPerHour     int64         `json:"penaltyPerHour"     yaml:"penaltyPerHour"`
	PenaltyPerHourDesc string        `json:"penaltyPerHourDesc" yaml:"penaltyPerHourDesc"`
	Cooldown           time.Duration `json:"cooldown"           yaml:"cooldown"`
	CooldownDesc       string        `json:"cooldownDesc"       yaml:"cooldownDesc"`
	ReminderLead       time.Duration `json:"reminderLead"       yaml:"reminderLead"`
	ReminderLeadDesc   string        `json:"reminderLeadDesc"   yaml:"reminderLeadDesc"`
	AdminPhone         string        `json:"adminPhone"         yaml:"adminPhone"`
	AdminPhoneDesc     string        `json:"adminPhoneDesc"     yaml:"adminPhoneDesc"`
}

type SchedulerConfig struct {
	Workers             int           `json:"workers"             yaml:"workers"`
	WorkersDesc         string        `json:"workersDesc"         yaml:"workersDesc"`
	MaxRetries          int           `json:"maxRetries"          yaml:"maxRetries"`
	MaxRetriesDesc      string        `json:"maxRetriesDesc"      yaml:"maxRetriesDesc"`
	BaseBackoff         time.Duration `json:"baseBackoff"         yaml:"baseBackoff"`
	BaseBackoffDesc     string        `json:"baseBackoffDesc"     yaml:"baseBackoffDesc"`
	NotifierTimeout     time.Duration `json:"notifierTimeout"     yaml:"notifierTimeout"`
	NotifierTimeoutDesc string        `json:"notifierTimeoutDesc" yaml:"notifierTimeoutDesc"`
	QueueSize           int           `json:"queueSize"           yaml:"queueSize"`
	QueueSizeDesc       string        `json:"queueSizeDesc"       yaml:"queueSizeDesc"`
}

type AdminConfig struct {
	Username     string `json:"username"     yaml:"username"`
	UsernameDesc string `json:"usernameDesc" yaml:"usernameDesc"`
	Password     string `json:"password"     yaml:"password"     sensitive:"true"`
	PasswordDesc string `json:"passwordDesc" yaml:"passwordDesc"`
}

func (c *Config) Print() {
	if c.Config.Print {
		log.Info().Interface("config", c).Msg("the following configurations have successfully loaded")
	}
}

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("profile", "local")

	v.SetDefault("config.print", false)
	v.SetDefault("config.source", "local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.structured", false)

	v.SetDefault("db.name", "motorent")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.pass", "postgres")
	v.SetDefault("db.migrate", true)
	v.SetDefault("db.clean", false)
	v.SetDefault("db.inMemory", false)
	v.SetDefault("db.pool.minSize", 2)
	v.SetDefault("db.pool.maxSize", 20)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", "5672")
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.pass", "guest")
	v.SetDefault("rabbitmq.mock", false)
	v.SetDefault("rabbitmq.transaction.exchange", "transaction.exchange")
	v.SetDefault("rabbitmq.notification.exchange", "notification.exchange")
	v.SetDefault("rabbitmq.unit.queue", "unit.queue")
	v.SetDefault("rabbitmq.unit.dlt.exchange", "unit.dlt.exchange")

	v.SetDefault("rental.timezone", "Asia/Jakarta")
	v.SetDefault("rental.penaltyPerHour", 10000)
	v.SetDefault("rental.cooldown", "1h")
	v.SetDefault("rental.reminderLead", "3h")
	v.SetDefault("rental.adminPhone", "")

	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.maxRetries", 5)
	v.SetDefault("scheduler.baseBackoff", "30s")
	v.SetDefault("scheduler.notifierTimeout", "15s")
	v.SetDefault("scheduler.queueSize", 256)

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
}

// Load reads configName.yaml from the working directory on top of the defaults. The file is optional.
func Load(configName string) *Config {
	config := newConfig()

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	log.Info().Str("configName", configName).Msg("loading local configurations...")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal().Err(err).Msg("failed to read configurations")
		}
		log.Warn().Str("configName", configName).Msg("no configuration file found, using defaults")
	}

	if err := viper.Unmarshal(config); err != nil {
		log.Fatal().Err(err).Msg("failed to load configurations")
	}
	config.Config.Name = configName

	return config
}

// LoadDefaults returns the configuration made of the defaults alone.
func LoadDefaults() *Config {
	config := newConfig()

	v := viper.New()
	setDefaults(v)
	if err := v.Unmarshal(config); err != nil {
		log.Fatal().Err(err).Msg("failed to load default configurations")
	}

	return config
}

func newConfig() *Config {
	config := &Config{
		AppName:     AppName,
		AppVersion:  AppVersion,
		Sha1Version: Sha1Version,
		BuildTime:   BuildTime,
		Revision:    Revision,
	}
	setDescriptions(config)
	return config
}

func setDescriptions(config *Config) {
	config.AppNameDesc = "Name of the application in a human readable format. Example: Motorent"
	config.AppVersionDesc = "Semantic version of the application. Example: v1.2.3"
	config.Sha1VersionDesc = "Git sha1 hash of the application version."
	config.BuildTimeDesc = "When the application was compiled."
	config.ProfileDesc = "Running profile of the application, can assist with sensible defaults or change behavior. Examples: local, dev, prod"
	config.RevisionDesc = "A hard coded revision handy for quickly determining if local changes are running. Examples: 1, Two, 9999"
	config.PortDesc = "Port that the application will bind to on startup. Examples: 8080, 3000"
	config.ConfigDesc = "Settings for where and how the application should get its configurations."
	config.LogDesc = "Settings for application logging."
	config.DbDesc = "Database configurations."
	config.RabbitMQDesc = "RabbitMQ configurations."
	config.RentalDesc = "Rules applied to rental transactions."
	config.SchedulerDesc = "Settings for the background job scheduler."
	config.AdminDesc = "Administrator account created on startup when it does not exist yet."

	config.Config.PrintDesc = "Print configurations on startup."
	config.Config.NameDesc = "Name of the yaml file, without extension, configurations are read from."
	config.Config.SourceDesc = "Where the application should go for configurations. Examples: local"

	config.Log.LevelDesc = "The lowest level that the application should log at. Examples: info, warn, error."
	config.Log.StructuredDesc = "Whether the application should output structured (json) logging, or human friendly plain text."

	config.Db.NameDesc = "The name of the database to connect to."
	config.Db.HostDesc = "Host of the database."
	config.Db.PortDesc = "Port of the database."
	config.Db.MigrateDesc = "Whether or not database migrations should be executed on startup."
	config.Db.CleanDesc = "WARNING: THIS WILL DELETE ALL DATA FROM THE DB. Used only during migration. If clean is true, all 'down' migrations are executed."
	config.Db.InMemoryDesc = "Whether or not the application should use an in memory database."
	config.Db.UserDesc = "User the application will use to connect to the database."
	config.Db.PassDesc = "Password the application will use for connecting to the database."
	config.Db.PoolDesc = "Connection pool settings."
	config.Db.Pool.MinSizeDesc = "Connections the pool keeps open even when idle."
	config.Db.Pool.MaxSizeDesc = "Most connections the pool will open."

	config.RabbitMQ.HostDesc = "RabbitMQ's broker host."
	config.RabbitMQ.PortDesc = "RabbitMQ's broker host port."
	config.RabbitMQ.UserDesc = "User the application will use to connect to RabbitMQ."
	config.RabbitMQ.PassDesc = "Password the application will use to connect to RabbitMQ."
	config.RabbitMQ.MockDesc = "Whether or not the application should mock sending messages to RabbitMQ."
	config.RabbitMQ.TransactionDesc = "RabbitMQ settings for transaction lifecycle events."
	config.RabbitMQ.Transaction.ExchangeDesc = "RabbitMQ exchange transaction events are posted to."
	config.RabbitMQ.NotificationDesc = "RabbitMQ settings for renter and admin notifications."
	config.RabbitMQ.Notification.ExchangeDesc = "RabbitMQ exchange read by the WhatsApp gateway."
	config.RabbitMQ.UnitDesc = "RabbitMQ settings for unit catalog updates."
	config.RabbitMQ.Unit.QueueDesc = "Queue used for listening to unit updates coming from the catalog."
	config.RabbitMQ.Unit.DltDesc = "Configurations for the unit dead letter topic, where messages that fail to be read from the queue are written."
	config.RabbitMQ.Unit.Dlt.ExchangeDesc = "Exchange used for posting messages to the dead letter topic."

	config.Rental.TimezoneDesc = "IANA time zone rental dates and times are interpreted in. Example: Asia/Jakarta"
	config.Rental.PenaltyPerHourDesc = "Denda charged for every started hour of a late return, in rupiah."
	config.Rental.CooldownDesc = "How long a returned unit cannot be booked. Example: 1h"
	config.Rental.ReminderLeadDesc = "How long before the scheduled end the renter is reminded. Example: 3h"
	config.Rental.AdminPhoneDesc = "Phone number told about overdue rentals. Leave empty to only notify renters."

	config.Scheduler.WorkersDesc = "Number of goroutines executing fired jobs."
	config.Scheduler.MaxRetriesDesc = "How many times a failing job is retried before it is marked failed."
	config.Scheduler.BaseBackoffDesc = "Delay before the first retry, doubled on every further retry. Example: 30s"
	config.Scheduler.NotifierTimeoutDesc = "Longest a single job, including its notifier call, may run. Example: 15s"
	config.Scheduler.QueueSizeDesc = "Fired jobs buffered ahead of the workers."

	config.Admin.UsernameDesc = "Username of the administrator account."
	config.Admin.PasswordDesc = "Password of the administrator account. The account is not created when empty."
}
