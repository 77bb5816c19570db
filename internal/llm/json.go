package llm

import (
	"encoding/json"
	"strings"

	"sifter/internal/errs"
)

// ExtractJSON unmarshals out of raw, tolerating a provider wrapping its
// response in a ```json ... ``` or bare ``` ... ``` code fence despite
// being instructed to return raw JSON.
func ExtractJSON(raw string, out interface{}) error {
	body := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return errs.Parse("unmarshal llm json response", err)
	}
	return nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
