package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---- test helpers ----

// buildTestWAV constructs a minimal valid RIFF/WAVE byte slice containing the
// supplied raw 16-bit mono PCM samples with a standard 44-byte header.
func buildTestWAV(rate uint32, pcm []byte) []byte {
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize)

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian

	putU32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, []byte("RIFF")...)
	putU32(fileSize)
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	putU32(fmtSize)
	putU16(1) // PCM format
	putU16(1) // mono
	putU32(rate)
	putU32(rate * 2) // byte rate
	putU16(2)        // block align
	putU16(16)       // bits per sample

	buf = append(buf, []byte("data")...)
	putU32(dataSize)
	buf = append(buf, pcm...)

	return buf
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8020", WithVoice("speaker.wav"))
		if p.language != "en" {
			t.Errorf("language = %q, want %q", p.language, "en")
		}
		if p.apiMode != APIModeXTTS {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeXTTS)
		}
	})

	t.Run("empty server URL", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty serverURL, got nil")
		}
	})

	t.Run("xtts mode requires voice", func(t *testing.T) {
		if _, err := New("http://localhost:8020"); err == nil {
			t.Fatal("expected error for missing voice in XTTS mode, got nil")
		}
	})

	t.Run("standard mode allows empty voice", func(t *testing.T) {
		mustNew(t, "http://localhost:5002", WithAPIMode(APIModeStandard))
	})
}

// ---- synthesis ----

func TestSynthesizeXTTS(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0x00, 0xC0} // +0.5, -0.5 as int16
	var gotReq ttsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(buildTestWAV(24000, pcm))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithVoice("speaker.wav"), WithLanguage("de"))
	samples, rate, err := p.Synthesize(context.Background(), "hallo welt")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotReq.Text != "hallo welt" {
		t.Errorf("request text = %q, want %q", gotReq.Text, "hallo welt")
	}
	if gotReq.Language != "de" {
		t.Errorf("request language = %q, want %q", gotReq.Language, "de")
	}
	if gotReq.SpeakerWav != "speaker.wav" {
		t.Errorf("request speaker_wav = %q, want %q", gotReq.SpeakerWav, "speaker.wav")
	}
	if rate != 24000 {
		t.Errorf("rate = %d, want 24000", rate)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0] < 0.49 || samples[0] > 0.51 {
		t.Errorf("samples[0] = %f, want ~0.5", samples[0])
	}
	if samples[1] > -0.49 || samples[1] < -0.51 {
		t.Errorf("samples[1] = %f, want ~-0.5", samples[1])
	}
}

func TestSynthesizeStandard(t *testing.T) {
	var gotText, gotSpeaker string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		gotText = r.URL.Query().Get("text")
		gotSpeaker = r.URL.Query().Get("speaker_id")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(buildTestWAV(22050, []byte{0x00, 0x00}))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeStandard), WithVoice("p225"))
	_, rate, err := p.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotText != "hello world" {
		t.Errorf("query text = %q, want %q", gotText, "hello world")
	}
	if gotSpeaker != "p225" {
		t.Errorf("query speaker_id = %q, want %q", gotSpeaker, "p225")
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
}

func TestSynthesizeEmptySentenceSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithVoice("speaker.wav"))
	samples, _, err := p.Synthesize(context.Background(), "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if samples != nil {
		t.Errorf("got %d samples for empty sentence, want none", len(samples))
	}
	if called {
		t.Error("server was called for empty sentence")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithVoice("speaker.wav"))
	if _, _, err := p.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

// ---- WAV parsing ----

func TestParseWAV(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		rate, pcm, err := parseWAV(buildTestWAV(16000, []byte{1, 2, 3, 4}))
		if err != nil {
			t.Fatalf("parseWAV: %v", err)
		}
		if rate != 16000 {
			t.Errorf("rate = %d, want 16000", rate)
		}
		if len(pcm) != 4 {
			t.Errorf("pcm length = %d, want 4", len(pcm))
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, _, err := parseWAV([]byte("RIFF")); err == nil {
			t.Error("expected error for truncated WAV")
		}
	})

	t.Run("not riff", func(t *testing.T) {
		bad := buildTestWAV(16000, []byte{0, 0})
		copy(bad[0:4], "OGGS")
		if _, _, err := parseWAV(bad); err == nil {
			t.Error("expected error for non-RIFF payload")
		}
	})

	t.Run("stereo rejected", func(t *testing.T) {
		bad := buildTestWAV(16000, []byte{0, 0})
		binary.LittleEndian.PutUint16(bad[22:24], 2)
		if _, _, err := parseWAV(bad); err == nil {
			t.Error("expected error for stereo WAV")
		}
	})
}
