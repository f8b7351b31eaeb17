package field

// compatibleConversions lists the declared field type conversions.
// Compatibility is directional and deliberately not assumed symmetric;
// every legal pair is listed explicitly.
var compatibleConversions = map[Type][]Type{
	TypeText:        {TypeRichText},
	TypeRichText:    {TypeText},
	TypeNumber:      {TypeCurrency},
	TypeCurrency:    {TypeNumber},
	TypeDate:        {TypeDateTime},
	TypeDateTime:    {TypeDate},
	TypeSelect:      {TypeMultiSelect},
	TypeMultiSelect: {TypeSelect},
}

// IsTypeCompatible reports whether a field of type from may be converted
// to type to without rewriting stored values. Identity conversions are
// always compatible; everything not listed is rejected.
func IsTypeCompatible(from, to Type) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, t := range compatibleConversions[from] {
		if t == to {
			return true
		}
	}
	return false
}
