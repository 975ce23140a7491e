package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// GetWorkingMemory returns the working-memory file's content.
// A missing file reads as empty.
func (e *Engine) GetWorkingMemory() (string, error) {
	return e.readWorkingMemory()
}

func (e *Engine) readWorkingMemory() (string, error) {
	if e.cfg.MemoryPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(e.cfg.MemoryPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AddFact appends a dated bullet under the named markdown section of the
// working-memory file, creating the file or section as needed, then re-syncs
// the index. An empty section defaults to "Facts".
func (e *Engine) AddFact(ctx context.Context, fact, section string) error {
	if e.cfg.MemoryPath == "" {
		return fmt.Errorf("add fact: no working-memory path configured")
	}
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return fmt.Errorf("add fact: empty fact")
	}
	if section == "" {
		section = "Facts"
	}

	content, err := e.readWorkingMemory()
	if err != nil {
		return fmt.Errorf("read working memory: %w", err)
	}

	entry := fmt.Sprintf("- %s (%s)", fact, time.Now().Format("2006-01-02"))
	updated := appendToSection(content, section, entry)

	if err := os.WriteFile(e.cfg.MemoryPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write working memory: %w", err)
	}
	return e.Sync(ctx)
}

// appendToSection inserts entry as the last line of the "## section" block,
// appending a new section at the end of the document when the heading does
// not exist yet.
func appendToSection(content, section, entry string) string {
	heading := "## " + section
	lines := strings.Split(content, "\n")

	headingIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == heading {
			headingIdx = i
			break
		}
	}

	if headingIdx == -1 {
		out := strings.TrimRight(content, "\n")
		if out != "" {
			out += "\n\n"
		}
		return out + heading + "\n\n" + entry + "\n"
	}

	// The section ends at the next heading or end of file; insert just above,
	// skipping trailing blank lines inside the section.
	end := len(lines)
	for i := headingIdx + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			end = i
			break
		}
	}
	insert := end
	for insert > headingIdx+1 && strings.TrimSpace(lines[insert-1]) == "" {
		insert--
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insert]...)
	out = append(out, entry)
	out = append(out, lines[insert:]...)
	return strings.Join(out, "\n")
}
