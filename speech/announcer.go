package speech

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/IsHPDuwu/classvoice/schedule"
)

// providerSuffixes maps a provider id suffix to its activity key, in match
// order. Unmatched providers get the generic title+message announcement.
var providerSuffixes = []struct {
	suffix string
	key    string
}{
	{".class", "class"},
	{".activity", "activity"},
	{".break", "break"},
	{".free", "free"},
	{".preparation", "preparation"},
}

// trailing punctuation stripped from templated announcements
const announceCutset = "。，, ."

// ResolveActivityKey extracts the activity key from a provider id, e.g.
// "com.classwidgets.schedule.runtime.class" resolves to "class". It
// returns "" when no suffix matches.
func ResolveActivityKey(providerID string) string {
	if providerID == "" {
		return ""
	}
	for _, m := range providerSuffixes {
		if strings.HasSuffix(providerID, m.suffix) {
			return m.key
		}
	}
	return ""
}

// BuildAnnounceText maps a notification event plus schedule context to the
// final spoken text. It returns "" when there is nothing to announce. The
// function is pure apart from logging: identical inputs yield identical
// output, and no failure escapes to the caller.
func BuildAnnounceText(ev Event, templates map[string]string, ctx schedule.Context) string {
	providerID := strings.TrimSpace(ev.ProviderID)
	title := strings.TrimSpace(ev.Title)
	message := strings.TrimSpace(ev.Message)

	log.Debug("building announcement",
		"provider_id", providerID, "title", title, "message", message)

	key := ResolveActivityKey(providerID)
	if key == "" {
		// Non-schedule notification: plain title+message join.
		var result string
		switch {
		case title != "" && message != "":
			result = title + "。" + message
		case title != "":
			result = title
		default:
			result = message
		}
		log.Debug("generic announcement", "key", key, "text", result)
		return result
	}

	template := templates[key]
	if template == "" {
		template = DefaultTemplates[key]
	}
	if template == "" {
		template = "{title}。{message}"
	}

	vars := map[string]string{
		"title":         title,
		"message":       message,
		"subject":       ctx.Subject,
		"teacher":       ctx.Teacher,
		"location":      ctx.Location,
		"next_subject":  ctx.NextSubject,
		"next_teacher":  ctx.NextTeacher,
		"next_location": ctx.NextLocation,
	}

	result, err := expandTemplate(template, vars)
	if err != nil {
		log.Warn("template expansion failed, falling back",
			"key", key, "err", err)
		if message != "" {
			return title + "。" + message
		}
		return title
	}

	result = strings.Trim(result, announceCutset)
	result = strings.TrimSpace(result)
	log.Debug("templated announcement", "key", key, "text", result)
	return result
}

// expandTemplate substitutes {placeholder} occurrences in tmpl from vars.
// Unknown placeholders and unbalanced braces are errors so that malformed
// user templates trigger the caller's fallback instead of speaking garbage.
func expandTemplate(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); {
		switch tmpl[i] {
		case '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at byte %d", i)
			}
			name := tmpl[i+1 : i+end]
			val, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("unknown placeholder %q", name)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			return "", fmt.Errorf("stray '}' at byte %d", i)
		default:
			b.WriteByte(tmpl[i])
			i++
		}
	}
	return b.String(), nil
}
