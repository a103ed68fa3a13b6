package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/onnwee/dj-tender/media"
)

// ErrNoText is returned when the model answers with nothing usable.
var ErrNoText = errors.New("empty model response")

const recommendSystemPrompt = `You are a radio DJ choosing the next songs for a live listening session.
Suggest real, existing songs that can be found on YouTube.
Respond with JSON only, in the form {"tracks":[{"title":"...","artist":"..."}]}.
Do not suggest songs listed under "Already played".`

const commentarySystemPrompt = `You are an upbeat radio DJ. Write a short spoken introduction (2-3 sentences)
for the upcoming songs. Plain text only: no emojis, no lists, no stage directions, no quotes.`

const banterSystemPrompt = `You are a playful radio DJ. A listener just skipped a song.
React in one short sentence. Plain text only: no emojis, no quotes.`

// maxHistoryHint caps how much history is sent; history is a soft dedup hint.
const maxHistoryHint = 50

// RecommendRequest carries the seeds and play history for one recommendation call.
type RecommendRequest struct {
	Song    string
	Artist  string
	Genre   string
	Prompt  string
	History []string
	Count   int
}

func (r RecommendRequest) prompt() string {
	var b strings.Builder
	n := r.Count
	if n <= 0 {
		n = 10
	}
	fmt.Fprintf(&b, "Suggest %d songs.\n", n)
	if r.Song != "" {
		fmt.Fprintf(&b, "Seed song: %s\n", r.Song)
	}
	if r.Artist != "" {
		fmt.Fprintf(&b, "Seed artist: %s\n", r.Artist)
	}
	if r.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", r.Genre)
	}
	if r.Prompt != "" {
		fmt.Fprintf(&b, "Listener request: %s\n", r.Prompt)
	}
	if len(r.History) > 0 {
		h := r.History
		if len(h) > maxHistoryHint {
			h = h[len(h)-maxHistoryHint:]
		}
		fmt.Fprintf(&b, "Already played: %s\n", strings.Join(h, "; "))
	}
	return b.String()
}

// Recommend asks the model for candidates. An empty slice with a nil error means
// the model had nothing to suggest.
func (c *Client) Recommend(ctx context.Context, req RecommendRequest) ([]media.Candidate, error) {
	out, err := c.Generate(ctx, recommendSystemPrompt, req.prompt(), true)
	if err != nil {
		return nil, err
	}
	return ParseCandidates(out)
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseCandidates accepts {"tracks":[...]} or a bare array, optionally inside a code fence.
// Entries without a title are dropped.
func ParseCandidates(raw string) ([]media.Candidate, error) {
	raw = strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return []media.Candidate{}, nil
	}

	var list []media.Candidate
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
	} else {
		var wrapped struct {
			Tracks []media.Candidate `json:"tracks"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		list = wrapped.Tracks
	}

	out := make([]media.Candidate, 0, len(list))
	for _, cand := range list {
		cand.Title = strings.TrimSpace(cand.Title)
		cand.Artist = strings.TrimSpace(cand.Artist)
		if cand.Title == "" {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// Commentary writes an introduction for the given tracks.
func (c *Client) Commentary(ctx context.Context, tracks []media.Track) (string, error) {
	var b strings.Builder
	b.WriteString("Upcoming songs:\n")
	for i, t := range tracks {
		fmt.Fprintf(&b, "%d. %s by %s\n", i+1, t.Title, t.Author)
	}
	return c.speech(ctx, commentarySystemPrompt, b.String())
}

// Banter writes a one-line reaction to a skip.
func (c *Client) Banter(ctx context.Context, skipped media.Track, skipper string) (string, error) {
	prompt := fmt.Sprintf("Skipped song: %s by %s\nSkipped by: %s", skipped.Title, skipped.Author, skipper)
	return c.speech(ctx, banterSystemPrompt, prompt)
}

func (c *Client) speech(ctx context.Context, system, prompt string) (string, error) {
	out, err := c.Generate(ctx, system, prompt, false)
	if err != nil {
		return "", err
	}
	out = cleanSpeech(out)
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanSpeech strips reasoning tags, wrapping quotes and markdown emphasis so the
// text can be fed straight to a speech synthesizer.
func cleanSpeech(s string) string {
	s = thinkRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("*", "", "_", " ", "#", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
