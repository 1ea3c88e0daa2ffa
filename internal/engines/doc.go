// Package engines contains the speech synthesis backends: Aliyun NLS (sync
// and long text), DashScope, gTTS and a silent mock engine, plus decorators
// for fallback and caching.
// Each engine implements tts.Synthesizer.
package engines
