// Package parse converts raw recipe text into structured records and
// validates submitted text for the required section markers.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/rezept/internal/models"
)

var (
	stepRe     = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)
	caloriesRe = regexp.MustCompile(`\d+`)
)

// ParseError reports malformed recipe input. It never crashes the
// synchronizer; callers log and skip.
type ParseError struct {
	Filename string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("parse %s: %s", e.Filename, e.Reason)
	}
	return fmt.Sprintf("parse recipe: %s", e.Reason)
}

// ValidationError reports structural defects in manually submitted recipe
// text, listing the missing section markers.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "invalid recipe: " + strings.Join(e.Missing, "; ")
}

// Parse parses recipe text into a record. Parsing is best effort: unknown
// or malformed fields default to empty values. filename becomes the
// record's source. Returns a ParseError only when no title line is present
// and the text yields nothing usable.
func Parse(content, filename string) (*models.Recipe, error) {
	r := &models.Recipe{
		Title:   "Untitled",
		Source:  filename,
		Content: content,
	}

	section := ""
	sawAnything := false
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "ingredients:":
			section = "ingredients"
			continue
		case "steps:":
			section = "steps"
			continue
		}

		if section == "" {
			if key, value, ok := strings.Cut(line, ":"); ok {
				applyField(r, strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value), &sawAnything)
			}
			continue
		}

		switch section {
		case "ingredients":
			if after, ok := strings.CutPrefix(line, "-"); ok {
				r.Ingredients = append(r.Ingredients, strings.TrimSpace(after))
				sawAnything = true
			}
		case "steps":
			if m := stepRe.FindStringSubmatch(line); m != nil {
				r.Steps = append(r.Steps, m[2])
			} else if !strings.HasPrefix(line, "-") {
				r.Steps = append(r.Steps, line)
			}
			sawAnything = true
		}
	}

	if !sawAnything && r.Title == "Untitled" {
		return nil, &ParseError{Filename: filename, Reason: "no recognizable recipe fields"}
	}
	return r, nil
}

func applyField(r *models.Recipe, key, value string, sawAnything *bool) {
	switch key {
	case "title":
		r.Title = value
	case "time":
		r.Time = value
	case "calories":
		if m := caloriesRe.FindString(value); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				r.Calories = &n
			}
		}
	case "diet":
		r.Diet = value
	case "cuisine":
		r.Cuisine = value
	default:
		return
	}
	*sawAnything = true
}

// Validate checks content for the required section markers. Returns true
// when all are present; otherwise false and the list of missing markers.
func Validate(content string) (bool, []string) {
	var missing []string
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "title:") {
		missing = append(missing, "missing 'Title:'")
	}
	if !strings.Contains(lower, "time:") {
		missing = append(missing, "missing 'Time:'")
	}
	if !strings.Contains(lower, "ingredients") {
		missing = append(missing, "missing ingredients section")
	}
	if !strings.Contains(lower, "steps") {
		missing = append(missing, "missing steps section")
	}
	return len(missing) == 0, missing
}

// ToMarkdown renders a record back to its canonical text form.
func ToMarkdown(r *models.Recipe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", r.Title)
	fmt.Fprintf(&b, "Time: %s\n", r.Time)
	if r.Calories != nil {
		fmt.Fprintf(&b, "Calories: %d\n", *r.Calories)
	}
	if r.Diet != "" {
		fmt.Fprintf(&b, "Diet: %s\n", r.Diet)
	}
	if r.Cuisine != "" {
		fmt.Fprintf(&b, "Cuisine: %s\n", r.Cuisine)
	}
	b.WriteString("\nIngredients:\n")
	for _, ing := range r.Ingredients {
		fmt.Fprintf(&b, "- %s\n", ing)
	}
	b.WriteString("\nSteps:\n")
	for i, step := range r.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return b.String()
}
