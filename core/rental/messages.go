package rental

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const messageTimeLayout = "02-01-2006 15:04"

func reminderMessage(t Transaction, unit MotorUnit, loc *time.Location) string {
	return fmt.Sprintf("Halo %s, masa sewa motor %s (%s) akan berakhir pada %s. "+
		"Mohon kembalikan tepat waktu untuk menghindari denda.",
		t.RenterName, unitName(unit), unit.PlateNumber, t.End.In(loc).Format(messageTimeLayout))
}

func overdueRenterMessage(t Transaction, unit MotorUnit, penaltyPerHour decimal.Decimal, loc *time.Location) string {
	return fmt.Sprintf("Halo %s, masa sewa motor %s (%s) telah berakhir pada %s. "+
		"Keterlambatan dikenakan denda %s per jam. Mohon segera kembalikan motor.",
		t.RenterName, unitName(unit), unit.PlateNumber, t.End.In(loc).Format(messageTimeLayout), FormatRupiah(penaltyPerHour))
}

func overdueAdminMessage(t Transaction, unit MotorUnit, loc *time.Location) string {
	return fmt.Sprintf("Transaksi #%d terlambat. Penyewa: %s (%s). Motor: %s (%s). Jadwal kembali: %s.",
		t.ID, t.RenterName, t.RenterPhone, unitName(unit), unit.PlateNumber, t.End.In(loc).Format(messageTimeLayout))
}

func completionMessage(t Transaction, unit MotorUnit, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Terima kasih %s, motor %s (%s) telah dikembalikan", t.RenterName, unitName(unit), unit.PlateNumber)
	if t.CompletedAt != nil {
		fmt.Fprintf(&b, " pada %s", t.CompletedAt.In(loc).Format(messageTimeLayout))
	}
	fmt.Fprintf(&b, ". Total sewa: %s.", FormatRupiah(t.TotalPrice))
	if t.Denda.IsPositive() {
		fmt.Fprintf(&b, " Denda keterlambatan: %s.", FormatRupiah(t.Denda))
	}
	return b.String()
}

func unitName(u MotorUnit) string {
	name := strings.TrimSpace(u.Type.Merk + " " + u.Type.Model)
	if name == "" {
		return fmt.Sprintf("unit #%d", u.ID)
	}
	return name
}

// FormatRupiah renders an amount the way Indonesian receipts do, e.g. "Rp 75.000".
func FormatRupiah(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	digits := amount.Round(0).StringFixed(0)

	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return "Rp " + sign + b.String()
}
