package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/lighthouse/internal/domain/model"
)

const maxLineBytes = 1 << 20

// ErrMalformedLine is returned for a line that is not a round.
var ErrMalformedLine = errors.New("malformed round line")

// ReadRounds parses one JSON round per line. Blank lines and lines starting
// with # are ignored. Rounds are returned in file order.
func ReadRounds(r io.Reader) ([]model.Round, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	var rounds []model.Round
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var round model.Round
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&round); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedLine, line, err)
		}
		if err := round.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedLine, line, err)
		}
		rounds = append(rounds, round)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading rounds: %w", err)
	}
	return rounds, nil
}

// WriteRounds writes rounds as JSON lines.
func WriteRounds(w io.Writer, rounds []model.Round) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range rounds {
		if err := enc.Encode(&rounds[i]); err != nil {
			return fmt.Errorf("writing round %s: %w", rounds[i], err)
		}
	}
	return bw.Flush()
}
