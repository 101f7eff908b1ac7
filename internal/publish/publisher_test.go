package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"subclean/internal/fileutil"
	"subclean/internal/media/ffprobe"
	"subclean/internal/media/frames"
	"subclean/internal/runspec"
	"subclean/internal/services"
	"subclean/internal/storage"
)

// stubMedia replaces ffmpeg with a muxer that records the staged sequence in
// the container file and ffprobe with a reader that counts those entries.
func stubMedia(t *testing.T, assembleErr error, probeFrames int) {
	t.Helper()
	restoreFFmpeg := frames.SetRunnerForTests(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if assembleErr != nil {
			return []byte("encoder missing"), assembleErr
		}
		var seqDir string
		for i, arg := range args {
			if arg == "-i" && i+1 < len(args) {
				seqDir = filepath.Dir(args[i+1])
			}
		}
		names, err := frames.List(seqDir)
		if err != nil {
			return nil, err
		}
		var content []string
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(seqDir, name))
			if err != nil {
				return nil, err
			}
			content = append(content, string(data))
		}
		output := args[len(args)-1]
		return nil, os.WriteFile(output, []byte(strings.Join(content, "\n")), 0o644)
	})
	restoreProbe := ffprobe.SetRunnerForTests(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		count := probeFrames
		if count < 0 {
			data, err := os.ReadFile(args[len(args)-1])
			if err != nil {
				return nil, err
			}
			count = len(strings.Split(string(data), "\n"))
		}
		return []byte(fmt.Sprintf(`{"streams":[{"codec_type":"video","nb_read_frames":"%d"}],"format":{}}`, count)), nil
	})
	t.Cleanup(func() {
		restoreFFmpeg()
		restoreProbe()
	})
}

func writeFrames(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.TrimSuffix(name, ".png")), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testSpec(t *testing.T, dest string) runspec.Spec {
	root := t.TempDir()
	return runspec.Spec{
		RunID:          "run-1",
		StagingDir:     filepath.Join(root, "staging"),
		PublishDir:     filepath.Join(root, "output"),
		DestinationURL: dest,
	}
}

func TestPublishAssemblesAndUploads(t *testing.T) {
	stubMedia(t, nil, -1)
	frameDir := writeFrames(t, "img_10.png", "img_2.png", "img_1.png")
	destRoot := t.TempDir()
	spec := testSpec(t, "file://"+destRoot+"/job")

	pub := New(Options{Store: storage.NewRouter(storage.Options{})})
	out := pub.Publish(context.Background(), frameDir, spec)

	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", out.Warnings)
	}
	if out.Container != spec.ContainerPath() || out.Frames != 3 || out.VerifiedFrames != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	data, err := os.ReadFile(out.Container)
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	if diff := cmp.Diff("img_1\nimg_2\nimg_10", string(data)); diff != "" {
		t.Fatalf("frame order mismatch (-want +got):\n%s", diff)
	}

	if out.ContainerURL != "file://"+destRoot+"/job/output_clean.mp4" {
		t.Fatalf("unexpected container url %q", out.ContainerURL)
	}
	if _, err := os.Stat(filepath.Join(destRoot, "job", "output_clean.mp4")); err != nil {
		t.Fatalf("container not uploaded: %v", err)
	}
	uploaded, err := fileutil.WalkFiles(filepath.Join(destRoot, "job", "frames"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"img_1.png", "img_10.png", "img_2.png"}, uploaded); diff != "" {
		t.Fatalf("uploaded frames mismatch (-want +got):\n%s", diff)
	}
	if out.UploadedFrames != 3 || !out.Uploaded() {
		t.Fatalf("unexpected upload summary %+v", out)
	}
}

func TestPublishWithoutDestinationStaysLocal(t *testing.T) {
	stubMedia(t, nil, -1)
	frameDir := writeFrames(t, "frame_00001.png", "frame_00002.png")
	store := &failingStore{}
	out := New(Options{Store: store}).Publish(context.Background(), frameDir, testSpec(t, ""))
	if !out.Assembled() || out.Uploaded() || len(out.Warnings) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.calls != 0 {
		t.Fatal("store must not be used without a destination")
	}
}

func TestPublishNoFrames(t *testing.T) {
	out := New(Options{}).Publish(context.Background(), "", testSpec(t, ""))
	if out.Assembled() || len(out.Warnings) != 1 {
		t.Fatalf("expected a single warning, got %+v", out)
	}
	if !strings.Contains(out.Warnings[0], services.ErrPublish.Error()) {
		t.Fatalf("warning should carry publish marker: %q", out.Warnings[0])
	}
}

func TestPublishAssembleFailureStillUploadsFrames(t *testing.T) {
	stubMedia(t, errors.New("exit status 1"), -1)
	frameDir := writeFrames(t, "frame_00001.png")
	destRoot := t.TempDir()
	out := New(Options{Store: storage.NewRouter(storage.Options{})}).
		Publish(context.Background(), frameDir, testSpec(t, "file://"+destRoot))

	if out.Assembled() || out.Uploaded() {
		t.Fatalf("container must not be reported: %+v", out)
	}
	if out.UploadedFrames != 1 || out.FramesURL == "" {
		t.Fatalf("frames should still be uploaded: %+v", out)
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "assemble") {
		t.Fatalf("unexpected warnings %v", out.Warnings)
	}
}

func TestPublishVerifyMismatchWarns(t *testing.T) {
	stubMedia(t, nil, 1)
	frameDir := writeFrames(t, "frame_00001.png", "frame_00002.png")
	out := New(Options{}).Publish(context.Background(), frameDir, testSpec(t, ""))
	if !out.Assembled() || out.VerifiedFrames != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "container holds 1 frames") {
		t.Fatalf("expected verify warning, got %v", out.Warnings)
	}
}

type failingStore struct {
	calls int
}

func (f *failingStore) Download(context.Context, string, string) error {
	f.calls++
	return errors.New("offline")
}

func (f *failingStore) Upload(context.Context, string, string) error {
	f.calls++
	return errors.New("offline")
}

func (f *failingStore) UploadDirectory(context.Context, string, string) (int, error) {
	f.calls++
	return 0, errors.New("offline")
}

func TestPublishUploadFailuresAreWarnings(t *testing.T) {
	stubMedia(t, nil, -1)
	frameDir := writeFrames(t, "frame_00001.png")
	store := &failingStore{}
	out := New(Options{Store: store}).Publish(context.Background(), frameDir, testSpec(t, "s3://bucket/out"))
	if !out.Assembled() || out.Uploaded() || out.FramesURL != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if store.calls != 2 || len(out.Warnings) != 2 {
		t.Fatalf("expected two failed uploads, got calls=%d warnings=%v", store.calls, out.Warnings)
	}
}
