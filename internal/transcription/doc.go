// Package transcription turns raw audio records into text via the whisper
// CLI.
//
// The Service wraps the subprocess invocation with a per-call timeout and a
// command-runner hook for tests. The Worker drives the transcribe queue:
// claim, transcribe, write the transcript into a replacement raw record so
// the processor picks it up on its next sweep, then complete or fail the
// job. Failed jobs wait for an explicit operator retry.
package transcription
