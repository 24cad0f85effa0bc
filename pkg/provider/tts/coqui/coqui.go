// Package coqui provides a Coqui TTS synthesizer backed by a local Coqui
// server.
//
// Two server flavours are supported: the XTTS v2 API server (POST
// /tts_to_audio/) and the standard Coqui TTS server (GET /api/tts). Both
// return WAV; the provider strips the header and hands back float32 samples.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/harkvoice/hark/pkg/audio"
	"github.com/harkvoice/hark/pkg/provider/tts"
)

const (
	ttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint = "/api/tts"

	defaultTimeout = 30 * time.Second
)

// APIMode selects which Coqui server API flavour to speak.
type APIMode string

const (
	// APIModeXTTS targets the XTTS v2 API server (POST /tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (GET /api/tts).
	APIModeStandard APIMode = "standard"
)

// Compile-time assertion that Provider implements tts.Synthesizer.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent with each request (XTTS mode).
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithVoice sets the speaker identifier: a speaker_wav path in XTTS mode, a
// speaker_id in standard mode.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithAPIMode selects the server API flavour. Defaults to APIModeXTTS.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Synthesizer backed by a Coqui server. It holds no
// per-request state and is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	voice      string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Provider that connects to the Coqui server at serverURL
// (e.g., "http://localhost:8020"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   "en",
		apiMode:    APIModeXTTS,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.voice == "" {
		return nil, errors.New("coqui: voice must not be empty in XTTS mode")
	}
	return p, nil
}

// ttsRequest is the XTTS /tts_to_audio/ JSON body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Synthesizer.
func (p *Provider) Synthesize(ctx context.Context, sentence string) ([]float32, int, error) {
	if sentence == "" {
		return nil, audio.CanonicalRate, nil
	}

	var (
		wav []byte
		err error
	)
	if p.apiMode == APIModeStandard {
		wav, err = p.fetchStandard(ctx, sentence)
	} else {
		wav, err = p.fetchXTTS(ctx, sentence)
	}
	if err != nil {
		return nil, 0, err
	}

	rate, pcm, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	return audio.DecodePCM16(pcm), rate, nil
}

// fetchXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) fetchXTTS(ctx context.Context, sentence string) ([]byte, error) {
	body := ttsRequest{
		Text:       sentence,
		SpeakerWav: p.voice,
		Language:   p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return p.do(req, ttsEndpoint)
}

// fetchStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters.
func (p *Provider) fetchStandard(ctx context.Context, sentence string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if p.voice != "" {
		params.Set("speaker_id", p.voice)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return p.do(req, apiTTSEndpoint)
}

func (p *Provider) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// parseWAV extracts the sample rate and PCM payload from a 16-bit mono WAV
// file. Only the canonical 44-byte-header layout produced by Coqui servers
// is accepted; anything else is a protocol error.
func parseWAV(wav []byte) (rate int, pcm []byte, err error) {
	if len(wav) < 44 {
		return 0, nil, errors.New("coqui: WAV response too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, nil, errors.New("coqui: response is not a RIFF/WAVE file")
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		return 0, nil, fmt.Errorf("coqui: unsupported WAV format %d (want PCM)", format)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		return 0, nil, fmt.Errorf("coqui: unsupported channel count %d (want mono)", channels)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		return 0, nil, fmt.Errorf("coqui: unsupported bit depth %d (want 16)", bits)
	}
	if string(wav[36:40]) != "data" {
		return 0, nil, errors.New("coqui: missing data chunk")
	}
	rate = int(binary.LittleEndian.Uint32(wav[24:28]))
	size := int(binary.LittleEndian.Uint32(wav[40:44]))
	pcm = wav[44:]
	if size < len(pcm) {
		pcm = pcm[:size]
	}
	return rate, pcm, nil
}
