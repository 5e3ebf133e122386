package config

import (
	"net/url"
	"strings"
)

// Redacted returns a copy safe to print: the Redis password is masked and
// credentials or query strings in URLs are hidden.
func (c *Config) Redacted() *Config {
	out := *c
	out.Redis.Password = MaskCredential(c.Redis.Password)
	out.API.BaseURL = redactURL(c.API.BaseURL)
	out.Notify.WebhookURL = redactURL(c.Notify.WebhookURL)
	return &out
}

// MaskCredential keeps at most the first and last four characters of a
// secret.
func MaskCredential(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// redactURL masks the password in userinfo and every query value. Webhook
// URLs often carry their token in the path, so paths past the first
// segment are masked too.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return MaskCredential(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "xxxxx")
		}
		u.RawQuery = q.Encode()
	}
	if segs := strings.Split(strings.Trim(u.Path, "/"), "/"); len(segs) > 1 {
		for i := 1; i < len(segs); i++ {
			segs[i] = MaskCredential(segs[i])
		}
		u.Path = "/" + strings.Join(segs, "/")
	}
	return u.String()
}
