//go:build !whisper

package doctor

func checkPortAudio() Result {
	return skip("portaudio", "built without '-tags whisper'; live capture unavailable")
}
