package detect

import "net/url"

// InjectionMatch identifies the offending field of an injection probe. The
// raw value is deliberately not carried: responses must never echo it back.
type InjectionMatch struct {
	Field    string
	Category string
	Value    string // retained for the audit event only
}

// FindInjection tests every string-valued field in body, query, and path
// parameters, in that order, against the injection table. It short-circuits
// on the first match.
func (r *Rules) FindInjection(body map[string]any, query url.Values, params map[string]string) (InjectionMatch, bool) {
	for _, key := range sortedKeysAny(body) {
		if s, ok := body[key].(string); ok {
			if cat, hit := r.matchInjection(s); hit {
				return InjectionMatch{Field: key, Category: cat, Value: s}, true
			}
		}
	}
	for _, key := range sortedQueryKeys(query) {
		for _, v := range query[key] {
			if cat, hit := r.matchInjection(v); hit {
				return InjectionMatch{Field: key, Category: cat, Value: v}, true
			}
		}
	}
	for _, key := range sortedKeysString(params) {
		if cat, hit := r.matchInjection(params[key]); hit {
			return InjectionMatch{Field: key, Category: cat, Value: params[key]}, true
		}
	}
	return InjectionMatch{}, false
}

func (r *Rules) matchInjection(value string) (category string, hit bool) {
	for i := range r.Injection {
		if r.Injection[i].re.MatchString(value) {
			return r.Injection[i].Category, true
		}
	}
	return "", false
}
