// Package elevenlabs provides an ElevenLabs-backed TTS synthesizer using the
// ElevenLabs streaming WebSocket API.
//
// Each Synthesize call opens a stream-input socket, sends the sentence plus a
// flush marker, and drains the resulting PCM chunks until the server closes
// the response. Opening a socket per sentence costs a round trip but keeps
// the provider stateless, which the concurrent preview/barge-in paths rely
// on.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	wsEndpointFmt    = "%s/v1/text-to-speech/%s/stream-input?model_id=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultRate      = audio.CanonicalRate
)

// Compile-time assertion that Provider implements tts.Synthesizer.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate sets the PCM output rate. Supported values follow the
// ElevenLabs pcm_* output formats (16000, 22050, 24000, 44100).
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
		p.outputFormat = fmt.Sprintf("pcm_%d", rate)
	}
}

// WithBaseURL replaces the API endpoint, for proxies and tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// Provider implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	voiceID      string
	baseURL      string
	model        string
	outputFormat string
	sampleRate   int
}

// New creates a new ElevenLabs Provider. apiKey and voiceID must be
// non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		voiceID:      voiceID,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		sampleRate:   defaultRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// textMessage is a streamed text fragment. An empty Text value is the flush
// marker that ends the input stream.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is one server message carrying base64 PCM.
type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

// boiMessage is the beginning-of-input message that authenticates and
// configures the stream.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize implements tts.Synthesizer.
func (p *Provider) Synthesize(ctx context.Context, sentence string) ([]float32, int, error) {
	if sentence == "" {
		return nil, p.sampleRate, nil
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, p.baseURL, p.voiceID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

	// BOI message: ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: vs,
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	if err := p.writeJSON(ctx, conn, boi); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	if err := p.writeJSON(ctx, conn, textMessage{Text: sentence + " "}); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	// Empty text is the end-of-input flush marker.
	if err := p.writeJSON(ctx, conn, textMessage{Text: ""}); err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			// Server closes the socket after the final chunk.
			break
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, 0, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, 0, errors.New("elevenlabs: no audio in response")
	}
	return audio.DecodePCM16(pcm), p.sampleRate, nil
}

func (p *Provider) writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
