package feature

// Set holds every derivable feature for one receipt as a fixed-schema struct,
// so a misspelt feature is a compile error rather than a silent zero.
type Set struct {
	TotalAmount           float64
	Tip                   float64
	ItemCount             float64
	TipRatio              float64
	AvgItemPrice          float64
	AmountLog             float64
	IsHighAmount          float64
	IsLowAmount           float64
	IsWeekend             float64
	IsMonthEnd            float64
	Month                 float64
	DayOfWeek             float64
	VendorNameLength      float64
	VendorHasNumbers      float64
	VendorHasSpecialChars float64
	VendorWordCount       float64
	HasPaymentMethod      float64
	HasItems              float64
	IsHighItemCount       float64
	HasTip                float64
}

// Value looks a feature up by name.
func (s Set) Value(name string) (float64, bool) {
	switch name {
	case TotalAmount:
		return s.TotalAmount, true
	case Tip:
		return s.Tip, true
	case ItemCount:
		return s.ItemCount, true
	case TipRatio:
		return s.TipRatio, true
	case AvgItemPrice:
		return s.AvgItemPrice, true
	case AmountLog:
		return s.AmountLog, true
	case IsHighAmount:
		return s.IsHighAmount, true
	case IsLowAmount:
		return s.IsLowAmount, true
	case IsWeekend:
		return s.IsWeekend, true
	case IsMonthEnd:
		return s.IsMonthEnd, true
	case Month:
		return s.Month, true
	case DayOfWeek:
		return s.DayOfWeek, true
	case VendorNameLength:
		return s.VendorNameLength, true
	case VendorHasNumbers:
		return s.VendorHasNumbers, true
	case VendorHasSpecialChars:
		return s.VendorHasSpecialChars, true
	case VendorWordCount:
		return s.VendorWordCount, true
	case HasPaymentMethod:
		return s.HasPaymentMethod, true
	case HasItems:
		return s.HasItems, true
	case IsHighItemCount:
		return s.IsHighItemCount, true
	case HasTip:
		return s.HasTip, true
	}
	return 0, false
}
