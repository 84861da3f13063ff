package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

type fakeSender struct {
	mu       sync.Mutex
	texts    []string
	audio    []channel.TextRef // refs audio was threaded to
	nextID   int
	audioErr error
}

func (f *fakeSender) SendText(_ context.Context, chatID, text string) (channel.TextRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, text)
	return channel.TextRef{Channel: "fake", ChatID: chatID, MessageID: fmt.Sprint(f.nextID)}, nil
}

func (f *fakeSender) SendAudio(_ context.Context, ref channel.TextRef, _ channel.Audio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	f.audio = append(f.audio, ref)
	return nil
}

func (f *fakeSender) audioRefs() []channel.TextRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]channel.TextRef, len(f.audio))
	copy(out, f.audio)
	return out
}

type fakeRenderer struct {
	delay time.Duration
	err   error
	panic bool

	mu    sync.Mutex
	langs []string
}

func (f *fakeRenderer) Render(ctx context.Context, text, language string) (*speech.Audio, error) {
	if f.panic {
		panic("renderer blew up")
	}
	f.mu.Lock()
	f.langs = append(f.langs, language)
	f.mu.Unlock()
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Audio{Data: []byte("ogg"), MIME: "audio/ogg"}, nil
}

// awaitRender wires a completion channel into the deliverer.
func awaitRender(d *Deliverer) <-chan error {
	done := make(chan error, 8)
	d.OnRenderDone(func(_ string, err error) { done <- err })
	return done
}

func TestDeliverTextOnly(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{}, nil, time.Second)

	ref, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "1", ref.MessageID)
	assert.Equal(t, []string{"hello"}, sender.texts)
	assert.Empty(t, sender.audioRefs(), "no audio without Voice")
}

func TestDeliverVoiceThreadsAudio(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{}, nil, time.Second)
	done := awaitRender(d)

	ref, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err)

	require.NoError(t, <-done)
	refs := sender.audioRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, ref, refs[0], "audio must thread to the text it voices")
}

func TestDeliverDetectsLanguageOnSpeakableText(t *testing.T) {
	sender := &fakeSender{}
	renderer := &fakeRenderer{}
	d := New(renderer, nil, time.Second)
	done := awaitRender(d)

	// The URL's Latin letters must not outvote the Ethiopic reply.
	text := "ሰላም ውሃ ዘመቻ: https://tesfa.example.org/campaigns/clean-water-adama"
	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: text, Voice: true})
	require.NoError(t, err)

	require.NoError(t, <-done)
	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	require.Len(t, renderer.langs, 1)
	assert.Equal(t, "am", renderer.langs[0])
}

func TestDeliverDoesNotWaitForRender(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{delay: 2 * time.Second}, nil, 5*time.Second)

	start := time.Now()
	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "text return must not wait for the render")
}

func TestDeliverSurvivesRenderFailure(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{err: fmt.Errorf("tts down")}, nil, time.Second)
	done := awaitRender(d)

	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err, "render failure must not fail the text path")

	assert.Error(t, <-done)
	assert.Empty(t, sender.audioRefs())
}

func TestDeliverSurvivesRenderPanic(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{panic: true}, nil, time.Second)
	done := awaitRender(d)

	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err)
	<-done
	assert.Empty(t, sender.audioRefs())
}

func TestDeliverSurvivesAudioSendFailure(t *testing.T) {
	sender := &fakeSender{audioErr: fmt.Errorf("chat gone")}
	d := New(&fakeRenderer{}, nil, time.Second)
	done := awaitRender(d)

	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err)
	assert.Error(t, <-done)
}

func TestDeliverSkipsUnspeakableReply(t *testing.T) {
	sender := &fakeSender{}
	d := New(&fakeRenderer{}, nil, time.Second)

	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "https://tesfa.org/c/42", Voice: true})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.audioRefs(), "a link-only reply has nothing to speak")
}

func TestDeliverNilRendererDegradesToText(t *testing.T) {
	sender := &fakeSender{}
	d := New(nil, nil, time.Second)

	_, err := d.Deliver(context.Background(), sender, Request{ChatID: "c1", Text: "hello", Voice: true})
	require.NoError(t, err)
	assert.Len(t, sender.texts, 1)
	assert.Empty(t, sender.audioRefs())
}

// Out-of-order render completion still lands each clip on its own text.
func TestDeliverOutOfOrderCompletion(t *testing.T) {
	sender := &fakeSender{}
	slow := New(&fakeRenderer{delay: 300 * time.Millisecond}, nil, 2*time.Second)
	fast := New(&fakeRenderer{}, nil, 2*time.Second)
	slowDone := awaitRender(slow)
	fastDone := awaitRender(fast)

	ctx := context.Background()
	ref1, err := slow.Deliver(ctx, sender, Request{ChatID: "c1", Text: "first reply", Voice: true})
	require.NoError(t, err)
	ref2, err := fast.Deliver(ctx, sender, Request{ChatID: "c1", Text: "second reply", Voice: true})
	require.NoError(t, err)

	require.NoError(t, <-fastDone)
	require.NoError(t, <-slowDone)

	refs := sender.audioRefs()
	require.Len(t, refs, 2)
	assert.Equal(t, ref2, refs[0], "faster render completes first")
	assert.Equal(t, ref1, refs[1])
}
