// Package transcribe provides speech-to-text backends for the pipeline.
package transcribe

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/okian/bandscore/internal/domain/model"
)

// verboseResult is the verbose transcription shape shared by the Whisper API
// and WhisperX-style wrappers.
type verboseResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word        string   `json:"word"`
		Start       float64  `json:"start"`
		End         float64  `json:"end"`
		Probability *float64 `json:"probability"`
		Score       *float64 `json:"score"`
	} `json:"words"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// transcript converts a verbose result into the domain transcript. Words
// without their own probability inherit the confidence of their segment.
func (v verboseResult) transcript() model.Transcript {
	tr := model.Transcript{
		Text:     strings.TrimSpace(v.Text),
		Language: v.Language,
		Duration: v.Duration,
		Words:    make([]model.Word, 0, len(v.Words)),
	}
	for _, w := range v.Words {
		word := model.Word{Text: strings.TrimSpace(w.Word), Start: w.Start, End: w.End}
		switch {
		case w.Probability != nil:
			word.Confidence = *w.Probability
		case w.Score != nil:
			word.Confidence = *w.Score
		default:
			word.Confidence = v.segmentConfidence(w.Start)
		}
		tr.Words = append(tr.Words, word)
	}
	return tr
}

func (v verboseResult) segmentConfidence(at float64) float64 {
	for _, s := range v.Segments {
		if at >= s.Start && at <= s.End {
			c := math.Exp(s.AvgLogprob)
			if c > 1 {
				c = 1
			}
			return math.Round(c*1000) / 1000
		}
	}
	return 0
}

// contentType guesses an upload content type from a filename.
func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}
