package field

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a value as a human-readable display string for its
// field. It is the inverse of Validate: pure, and never fails — values
// that do not match the field's type fall back to their stringified form.
//
//nolint:gocyclo // exhaustive dispatch over every field type variant
func Format(f Field, value any) string {
	if IsEmptyValue(value) {
		return ""
	}
	switch f.Type {
	case TypeText, TypeRichText, TypeURL:
		return formatText(f, value)
	case TypeNumber, TypeAutoNumber:
		return formatNumber(f, value)
	case TypeCurrency:
		return formatCurrency(f, value)
	case TypeRating:
		return formatRating(f, value)
	case TypeProgress:
		return formatProgress(f, value)
	case TypeDate, TypeDateTime, TypeTime, TypeCreatedTime, TypeUpdatedTime:
		return formatDate(f, value)
	case TypeCheckbox:
		if b, ok := value.(bool); ok && b {
			return "☑"
		}
		return "☐"
	case TypeMultiSelect, TypeArray, TypeRelation:
		if items, ok := AsStringSlice(value); ok {
			return strings.Join(items, ", ")
		}
		return Stringify(value)
	case TypeLocation:
		if m, ok := value.(map[string]any); ok {
			lat, latOK := AsNumber(m["lat"])
			lng, lngOK := AsNumber(m["lng"])
			if latOK && lngOK {
				return fmt.Sprintf("%.5f, %.5f", lat, lng)
			}
		}
		return Stringify(value)
	default:
		return Stringify(value)
	}
}

func formatText(f Field, value any) string {
	s := Stringify(value)
	if f.Config.Text != nil && f.Config.Text.TruncateAt > 0 {
		runes := []rune(s)
		if len(runes) > f.Config.Text.TruncateAt {
			return string(runes[:f.Config.Text.TruncateAt]) + "…"
		}
	}
	return s
}

func formatNumber(f Field, value any) string {
	n, ok := AsNumber(value)
	if !ok {
		return Stringify(value)
	}
	precision := 2
	style := NumberPlain
	if f.Config.Number != nil {
		precision = f.Config.Number.Precision
		if f.Config.Number.Style != "" {
			style = f.Config.Number.Style
		}
	}
	switch style {
	case NumberPercent:
		return strconv.FormatFloat(n*100, 'f', precision, 64) + "%"
	case NumberScientific:
		return strconv.FormatFloat(n, 'e', precision, 64)
	default:
		return strconv.FormatFloat(n, 'f', precision, 64)
	}
}

func formatCurrency(f Field, value any) string {
	n, ok := AsNumber(value)
	if !ok {
		return Stringify(value)
	}
	symbol, precision := "$", 2
	if f.Config.Currency != nil {
		if f.Config.Currency.Symbol != "" {
			symbol = f.Config.Currency.Symbol
		}
		precision = f.Config.Currency.Precision
	}
	return symbol + strconv.FormatFloat(n, 'f', precision, 64)
}

func formatRating(f Field, value any) string {
	n, ok := AsNumber(value)
	if !ok {
		return Stringify(value)
	}
	maxRating := 5
	style := RatingStar
	if f.Config.Rating != nil {
		if f.Config.Rating.Max > 0 {
			maxRating = f.Config.Rating.Max
		}
		if f.Config.Rating.Style != "" {
			style = f.Config.Rating.Style
		}
	}
	filled := int(n)
	if filled > maxRating {
		filled = maxRating
	}
	switch style {
	case RatingHeart:
		return strings.Repeat("♥", filled) + strings.Repeat("♡", maxRating-filled)
	case RatingNumeric:
		return fmt.Sprintf("%d/%d", filled, maxRating)
	default:
		return strings.Repeat("★", filled) + strings.Repeat("☆", maxRating-filled)
	}
}

func formatProgress(f Field, value any) string {
	n, ok := AsNumber(value)
	if !ok {
		return Stringify(value)
	}
	maxProgress := 100.0
	style := ProgressBar
	if f.Config.Progress != nil {
		if f.Config.Progress.Max > 0 {
			maxProgress = f.Config.Progress.Max
		}
		if f.Config.Progress.Style != "" {
			style = f.Config.Progress.Style
		}
	}
	ratio := n / maxProgress
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	switch style {
	case ProgressPercent:
		return strconv.FormatFloat(ratio*100, 'f', 0, 64) + "%"
	case ProgressFraction:
		return fmt.Sprintf("%s/%s",
			strconv.FormatFloat(n, 'f', -1, 64),
			strconv.FormatFloat(maxProgress, 'f', -1, 64))
	default:
		const width = 10
		filled := int(ratio * width)
		return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
	}
}

func formatDate(f Field, value any) string {
	t, ok := AsTime(value)
	if !ok {
		return Stringify(value)
	}
	layout := "2006-01-02"
	if f.Config.Date != nil && f.Config.Date.Layout != "" {
		layout = f.Config.Date.Layout
	}
	return t.Format(layout)
}
