package detect

// CheckHoneypot reports which decoy fields carry a value in the raw request
// body. The fields are never rendered to human users; anything filling them
// is an automated form-filler. Must run on unvalidated input, before any
// other body-based check.
func (r *Rules) CheckHoneypot(body map[string]any) (filled []string) {
	if body == nil {
		return nil
	}
	for _, field := range r.HoneypotFields {
		if v, ok := body[field]; ok && truthy(v) {
			filled = append(filled, field)
		}
	}
	return filled
}

// truthy mirrors the loose presence check the decoy contract was written
// against: empty strings, zero numbers, false, and nil do not count.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}
