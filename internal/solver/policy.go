package solver

import (
	"net/url"
	"strings"
)

// PlaceholderPolicy decides whether a benign answer may stand in when the LLM
// fallback produced nothing. Some evaluation services accept any first answer
// and reply with the real next URL.
type PlaceholderPolicy interface {
	Placeholder(session Session) (any, bool)
}

type NoPlaceholder struct{}

func (NoPlaceholder) Placeholder(Session) (any, bool) {
	return nil, false
}

// HostPlaceholderPolicy substitutes Answer when the submit URL, the current
// page or the start page lives on one of Hosts (or a subdomain of one).
type HostPlaceholderPolicy struct {
	Hosts  []string
	Answer string
}

func NewHostPlaceholderPolicy(hosts []string, answer string) PlaceholderPolicy {
	cleaned := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if trimmed := strings.ToLower(strings.TrimSpace(host)); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 || strings.TrimSpace(answer) == "" {
		return NoPlaceholder{}
	}
	return HostPlaceholderPolicy{Hosts: cleaned, Answer: answer}
}

func (p HostPlaceholderPolicy) Placeholder(session Session) (any, bool) {
	for _, candidate := range []string{session.SubmitURL, session.CurrentURL, session.StartURL} {
		if p.matches(candidate) {
			return p.Answer, true
		}
	}
	return nil, false
}

func (p HostPlaceholderPolicy) matches(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, allowed := range p.Hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
