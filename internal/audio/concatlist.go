package audio

import (
	"fmt"
	"os"
)

// writeConcatList writes an ffmpeg concat-demuxer list file naming parts in
// order and returns its path plus a cleanup func to remove it.
func writeConcatList(parts []string) (string, func(), error) {
	f, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return "", func() {}, fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()

	for _, p := range parts {
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapeConcatPath(p)); err != nil {
			os.Remove(f.Name())
			return "", func() {}, fmt.Errorf("write concat list: %w", err)
		}
	}

	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

// escapeConcatPath escapes single quotes per ffmpeg's concat demuxer
// quoting rules (close, escape, reopen).
func escapeConcatPath(p string) string {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, p[i])
	}
	return string(out)
}
