package stage

import "os"

// Ready reports whether dir exists, is a directory, and holds at least one
// entry. It performs no content validation; a malformed input is left for the
// external stage to reject.
func Ready(dir string) bool {
	if dir == "" {
		return false
	}
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		return false
	}
	names, err := f.Readdirnames(1)
	return err == nil && len(names) > 0
}

// FirstUnready returns the first directory in dirs that fails Ready, or "" when
// every directory is ready.
func FirstUnready(dirs ...string) (string, bool) {
	for _, dir := range dirs {
		if !Ready(dir) {
			return dir, true
		}
	}
	return "", false
}
