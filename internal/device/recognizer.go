package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/enxitry/enxitry/internal/enxitry/types"
)

// Recognizer reads a credential off a camera frame. ok is false when the
// frame does not show a readable credential.
type Recognizer interface {
	Recognize(ctx context.Context, f Frame) (types.RecognizedCredential, bool, error)
}

// OCREngine returns the text runs of an image in reading order.
type OCREngine interface {
	Lines(ctx context.Context, image []byte) ([]string, error)
}

// TesseractEngine shells out to the tesseract CLI in TSV mode.
type TesseractEngine struct {
	Path      string
	Languages string
}

func (e TesseractEngine) Lines(ctx context.Context, image []byte) ([]string, error) {
	path := e.Path
	if path == "" {
		path = "tesseract"
	}
	args := []string{"stdin", "stdout"}
	if e.Languages != "" {
		args = append(args, "-l", e.Languages)
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(image)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(out)
}

// ParseTSV groups tesseract word rows (level 5) into lines keyed by block,
// paragraph and line number, keeping first-seen order.
func ParseTSV(tsv []byte) ([]string, error) {
	type key struct{ block, par, line int }
	var (
		order []key
		words = map[key][]string{}
	)
	sc := bufio.NewScanner(bytes.NewReader(tsv))
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		f := strings.Split(sc.Text(), "\t")
		if len(f) < 12 || f[0] != "5" {
			continue
		}
		text := strings.TrimSpace(f[11])
		if text == "" {
			continue
		}
		var k key
		var err error
		if k.block, err = strconv.Atoi(f[2]); err != nil {
			return nil, fmt.Errorf("tsv block: %w", err)
		}
		if k.par, err = strconv.Atoi(f[3]); err != nil {
			return nil, fmt.Errorf("tsv par: %w", err)
		}
		if k.line, err = strconv.Atoi(f[4]); err != nil {
			return nil, fmt.Errorf("tsv line: %w", err)
		}
		if _, seen := words[k]; !seen {
			order = append(order, k)
		}
		words[k] = append(words[k], text)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(order))
	for _, k := range order {
		lines = append(lines, strings.Join(words[k], " "))
	}
	return lines, nil
}

// TextRecognizer applies the credential heuristic to OCR output: the id is
// the first run made only of IDLength digits, the name is the first later
// run containing Separator.
type TextRecognizer struct {
	Engine    OCREngine
	IDLength  int
	Separator string
	Rotation  int
}

func (r TextRecognizer) Recognize(ctx context.Context, f Frame) (types.RecognizedCredential, bool, error) {
	f, err := Rotate(f, r.Rotation)
	if err != nil {
		return types.RecognizedCredential{}, false, err
	}
	lines, err := r.Engine.Lines(ctx, f.Data)
	if err != nil {
		return types.RecognizedCredential{}, false, err
	}
	cred, ok := r.Parse(lines)
	return cred, ok, nil
}

// Parse runs the heuristic over already extracted runs. A run also counts as
// the id when one of its words qualifies; the words after it may carry the
// name.
func (r TextRecognizer) Parse(runs []string) (types.RecognizedCredential, bool) {
	sep := r.Separator
	if sep == "" {
		sep = ","
	}
	var id string
	for _, run := range runs {
		run = strings.TrimSpace(width.Fold.String(run))
		if id == "" {
			var rest string
			id, rest = r.findID(run)
			if id != "" && strings.Contains(rest, sep) {
				return types.RecognizedCredential{ExternalID: id, Name: rest}, true
			}
			continue
		}
		if strings.Contains(run, sep) {
			return types.RecognizedCredential{ExternalID: id, Name: run}, true
		}
	}
	return types.RecognizedCredential{}, false
}

// findID returns the id found in run and the text that follows it on the
// same run.
func (r TextRecognizer) findID(run string) (id, rest string) {
	if r.isID(run) {
		return run, ""
	}
	words := strings.Fields(run)
	for i, w := range words {
		if r.isID(w) {
			return w, strings.Join(words[i+1:], " ")
		}
	}
	return "", ""
}

func (r TextRecognizer) isID(s string) bool {
	n := r.IDLength
	if n <= 0 {
		n = 9
	}
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
