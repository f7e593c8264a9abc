package rpak

import (
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
)

// Compress re-encodes the file at path through a bzip2 writer, producing a
// sibling ".bz2" file and leaving the original byte-exact pak untouched.
// The core builder never compresses its own output (spec §1: "it does not
// compress the output (a compression hook exists but is not specified
// here)"); this is that hook, off by default and safe to skip entirely.
func Compress(path string, level int) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	outPath := path + ".bz2"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w, err := bzip2.NewWriter(out, &bzip2.WriterConfig{Level: level})
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return outPath, nil
}
