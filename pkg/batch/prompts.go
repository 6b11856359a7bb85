package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxPromptLine = 4 << 20

// ReadPrompts parses JSON lines of the form {"prompt": "...", "metadata": {...}}.
// Blank lines are skipped.
func ReadPrompts(r io.Reader) ([]Prompt, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxPromptLine)

	var prompts []Prompt
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p Prompt
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("batch: prompts line %d: %w", line, err)
		}
		if strings.TrimSpace(p.Text) == "" {
			return nil, fmt.Errorf("batch: prompts line %d: empty prompt", line)
		}
		prompts = append(prompts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("batch: read prompts: %w", err)
	}
	return prompts, nil
}
