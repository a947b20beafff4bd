package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/model-collapse/panoptic-prep/cache"
	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/raster"
	"github.com/model-collapse/panoptic-prep/util"
)

var (
	grass    = labels.Color{R: 0, G: 102, B: 0}
	pole     = labels.Color{R: 0, G: 153, B: 153}
	sky      = labels.Color{R: 0, G: 0, B: 255}
	vehicle  = labels.Color{R: 255, G: 255, B: 0}
	concrete = labels.Color{R: 101, G: 101, B: 11}
)

// --- helpers ---

func touch(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeLabels(t *testing.T, path string, c *raster.Color) {
	t.Helper()
	if err := raster.WritePNG(path, c.Image()); err != nil {
		t.Fatal(err)
	}
}

// dataset builds <tmp>/set with three label images and returns its path.
func dataset(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "set")

	c := raster.NewColor(8, 8)
	c.Fill(image.Rect(0, 0, 8, 2), grass)
	c.Set(7, 0, labels.Color{R: 1, G: 2, B: 3})
	c.Fill(image.Rect(1, 3, 4, 7), pole)
	c.Fill(image.Rect(6, 3, 8, 8), pole)
	writeLabels(t, filepath.Join(root, "a", "0001.png"), c)

	c = raster.NewColor(8, 8)
	c.Fill(image.Rect(0, 0, 8, 2), sky)
	c.Fill(image.Rect(2, 2, 6, 6), vehicle)
	c.Set(0, 7, pole)
	writeLabels(t, filepath.Join(root, "a", "0002.png"), c)

	c = raster.NewColor(4, 4)
	c.Fill(image.Rect(0, 0, 4, 4), grass)
	writeLabels(t, filepath.Join(root, "b", "0003.png"), c)

	return root
}

func runner(t *testing.T, opts Options) *Runner {
	t.Helper()
	reg, err := labels.New(labels.RUGD)
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(reg, opts)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return cache.Unmarshal(data)
}

func (m *memCache) Set(_ context.Context, key string, e *cache.Entry) error {
	data, err := cache.Marshal(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

// --- Discover tests ---

func TestDiscover_SkipsDerivedAndSorts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "z.png")
	touch(t, dir, "a.png")
	touch(t, dir, "a_instanceIds.png")
	touch(t, dir, "a_panoptic.png")
	touch(t, dir, filepath.Join("sub", "b.png"))
	touch(t, dir, "notes.txt")

	files, err := Discover(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "sub", "b.png"),
		filepath.Join(dir, "z.png"),
	}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}

	ids, err := Discover(dir, InstanceIDsSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || filepath.Base(ids[0]) != "a_instanceIds.png" {
		t.Errorf("instance id files = %v", ids)
	}
}

func TestDiscover_MissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope"), ""); err == nil {
		t.Error("expected error")
	}
}

func TestLayoutFor(t *testing.T) {
	l := LayoutFor("/data/rugd/train/", panoptic.ModeInstances)
	if l.Root != "/data/rugd/train" ||
		l.PanopticDir != "/data/rugd/train_panoptic" ||
		l.Document != "/data/rugd/annotations_train_instances.json" ||
		l.Categories != "/data/rugd/categories.json" {
		t.Errorf("layout = %+v", l)
	}
}

func TestLabelFileName(t *testing.T) {
	got, err := LabelFileName("/d/set", "/d/set/a/0001_instanceIds.png")
	if err != nil || got != "a/0001.png" {
		t.Errorf("LabelFileName = %q, %v", got, err)
	}
}

// --- annotation runs ---

func TestPanoptic(t *testing.T) {
	root := dataset(t)
	stats, err := runner(t, Options{Workers: 2}).Panoptic(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 3 || stats.Failed != 0 || stats.Images != 3 || stats.Unknown != 1 {
		t.Errorf("stats = %+v", stats)
	}

	layout := LayoutFor(root, panoptic.ModePanoptic)
	doc, err := coco.LoadPanoptic(layout.Document)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"a/0001.png", "a/0002.png", "b/0003.png"}
	for i, img := range doc.Images {
		if img.ID != i+1 || img.FileName != names[i] {
			t.Errorf("image %d = %+v", i, img)
		}
	}

	segs := doc.Annotations[0].SegmentsInfo
	if len(segs) != 3 || segs[0].ID != 3 || segs[1].ID != 5000 || segs[2].ID != 5001 {
		t.Fatalf("segments = %+v", segs)
	}
	if segs[1].BBox != (panoptic.BBox{1, 3, 3, 4}) || segs[1].Area != 12 || segs[1].CategoryID != 5 {
		t.Errorf("pole = %+v", segs[1])
	}
	if segs[0].Area != 15 {
		t.Errorf("grass area = %d, unknown pixel must not count", segs[0].Area)
	}

	img, err := raster.LoadColor(filepath.Join(layout.PanopticDir, "a", "0001.png"))
	if err != nil {
		t.Fatal(err)
	}
	if c := img.At(1, 3); panoptic.Unpack(c.R, c.G, c.B) != 5000 {
		t.Errorf("panoptic pixel = %v", c)
	}
	if c := img.At(7, 0); c != labels.Background {
		t.Errorf("unknown pixel must stay background, got %v", c)
	}

	cats, err := coco.LoadCategories(layout.Categories)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != len(doc.Categories) || len(cats) != 24 {
		t.Errorf("categories = %d, document has %d", len(cats), len(doc.Categories))
	}
}

func TestInstances(t *testing.T) {
	root := dataset(t)
	stats, err := runner(t, Options{Workers: 3}).Instances(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Dropped != 1 || stats.Annotations != 3 {
		t.Errorf("stats = %+v", stats)
	}

	layout := LayoutFor(root, panoptic.ModeInstances)
	doc, err := coco.LoadInstances(layout.Document)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		id, image int
		category  uint32
	}{{1, 1, 5}, {2, 1, 5}, {3, 2, 8}}
	if len(doc.Annotations) != len(want) {
		t.Fatalf("annotations = %+v", doc.Annotations)
	}
	for i, w := range want {
		a := doc.Annotations[i]
		if a.ID != w.id || a.ImageID != w.image || a.CategoryID != w.category || a.BBoxMode != 1 {
			t.Errorf("annotation %d = %+v", i, a)
		}
		if len(a.Segmentation) == 0 || len(a.Segmentation[0]) < 6 {
			t.Errorf("annotation %d has no polygon", i)
		}
	}
	if len(doc.Categories) != 2 || doc.Categories[0].ID != 5 || doc.Categories[1].ID != 8 {
		t.Errorf("categories = %+v", doc.Categories)
	}
	// The shared taxonomy file stays complete in instances mode.
	cats, err := coco.LoadCategories(layout.Categories)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 24 {
		t.Errorf("categories.json has %d categories, want 24", len(cats))
	}
	if _, err := os.Stat(layout.PanopticDir); !os.IsNotExist(err) {
		t.Error("instances run must not write panoptic images")
	}
}

func TestPanoptic_DeterministicAcrossWorkers(t *testing.T) {
	var docs [][]byte
	for _, workers := range []int{1, 4} {
		root := dataset(t)
		if _, err := runner(t, Options{Workers: workers}).Panoptic(context.Background(), root); err != nil {
			t.Fatal(err)
		}
		docs = append(docs, readFile(t, LayoutFor(root, panoptic.ModePanoptic).Document))
	}
	if !bytes.Equal(docs[0], docs[1]) {
		t.Error("documents differ between worker counts")
	}
}

func TestPanoptic_FailedUnitIsExcluded(t *testing.T) {
	root := dataset(t)
	touch(t, root, filepath.Join("a", "0000.png"))

	stats, err := runner(t, Options{Workers: 2}).Panoptic(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || stats.Succeeded != 3 || stats.Images != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if !errors.Is(stats.Failures[0].Err, ErrIO) {
		t.Errorf("failure = %v, want ErrIO", stats.Failures[0].Err)
	}

	doc, err := coco.LoadPanoptic(LayoutFor(root, panoptic.ModePanoptic).Document)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Images[0].FileName != "a/0001.png" || doc.Images[0].ID != 1 {
		t.Errorf("first image = %+v", doc.Images[0])
	}
}

func TestPanoptic_Cancelled(t *testing.T) {
	root := dataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := runner(t, Options{}).Panoptic(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if stats.Failed != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := os.Stat(LayoutFor(root, panoptic.ModePanoptic).Document); !os.IsNotExist(err) {
		t.Error("cancelled run must not write a document")
	}
}

func TestPanoptic_Cache(t *testing.T) {
	root := dataset(t)
	mc := &memCache{entries: make(map[string][]byte)}
	r := runner(t, Options{Workers: 2, Cache: mc})
	path := LayoutFor(root, panoptic.ModePanoptic).Document

	first, err := r.Panoptic(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheHits != 0 || len(mc.entries) != 3 {
		t.Fatalf("first run: hits %d, entries %d", first.CacheHits, len(mc.entries))
	}
	before := readFile(t, path)

	second, err := r.Panoptic(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if second.CacheHits != 3 || second.Unknown != 1 {
		t.Errorf("second run = %+v", second)
	}
	if !bytes.Equal(before, readFile(t, path)) {
		t.Error("cached run produced a different document")
	}

	// A missing panoptic image forces recomputation.
	if err := os.Remove(filepath.Join(root+"_panoptic", "b", "0003.png")); err != nil {
		t.Fatal(err)
	}
	third, err := r.Panoptic(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if third.CacheHits != 2 {
		t.Errorf("third run hits = %d", third.CacheHits)
	}
}

func TestInstances_CacheKeyedByTolerance(t *testing.T) {
	root := dataset(t)
	mc := &memCache{entries: make(map[string][]byte)}

	fine, err := runner(t, Options{Workers: 2, Tolerance: 0.5, Cache: mc}).Instances(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if fine.CacheHits != 0 {
		t.Fatalf("first run hits = %d", fine.CacheHits)
	}

	coarse, err := runner(t, Options{Workers: 2, Tolerance: 5, Cache: mc}).Instances(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if coarse.CacheHits != 0 || len(mc.entries) != 6 {
		t.Errorf("other tolerance: hits %d, entries %d", coarse.CacheHits, len(mc.entries))
	}

	again, err := runner(t, Options{Workers: 2, Tolerance: 0.5, Cache: mc}).Instances(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if again.CacheHits != 3 {
		t.Errorf("same tolerance hits = %d", again.CacheHits)
	}
}

func TestInstanceIDs(t *testing.T) {
	root := dataset(t)
	r := runner(t, Options{Workers: 2})

	stats, err := r.InstanceIDs(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 3 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}

	ids, err := raster.LoadInstanceIDs(filepath.Join(root, "a", "0001_instanceIds.png"))
	if err != nil {
		t.Fatal(err)
	}
	if ids.At(1, 3) != 5000 || ids.At(6, 3) != 5001 || ids.At(0, 0) != 3 || ids.At(7, 0) != 0 {
		t.Errorf("instance ids = %d %d %d %d", ids.At(1, 3), ids.At(6, 3), ids.At(0, 0), ids.At(7, 0))
	}

	again, err := r.InstanceIDs(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if again.Skipped != 3 {
		t.Errorf("second run skipped %d", again.Skipped)
	}
}

func TestInstanceIDs_WarnsUnknownColors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := util.Logger
	util.Logger = zap.New(core)
	defer func() { util.Logger = prev }()

	root := dataset(t)
	if _, err := runner(t, Options{Workers: 2}).InstanceIDs(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	warned := logs.FilterMessage("unknown label colors skipped").All()
	if len(warned) != 1 {
		t.Fatalf("%d unknown color warnings, want 1", len(warned))
	}
	fields := warned[0].ContextMap()
	if fields["file"] != filepath.Join(root, "a", "0001.png") || fields["pixels"] != int64(1) {
		t.Errorf("warning fields = %v", fields)
	}
}

func TestPanoptic_InstanceIDInputMatchesColorInput(t *testing.T) {
	root := dataset(t)
	path := LayoutFor(root, panoptic.ModePanoptic).Document

	if _, err := runner(t, Options{}).Panoptic(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	fromColor := readFile(t, path)

	if _, err := runner(t, Options{}).InstanceIDs(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if _, err := runner(t, Options{Input: InputInstanceIDs}).Panoptic(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fromColor, readFile(t, path)) {
		t.Error("documents differ between color and instance-id input")
	}
}

func TestConvert(t *testing.T) {
	root := filepath.Join(t.TempDir(), "set")
	c := raster.NewColor(4, 4)
	c.Fill(image.Rect(0, 0, 4, 2), concrete)
	c.Fill(image.Rect(0, 2, 4, 4), grass)
	writeLabels(t, filepath.Join(root, "0001.png"), c)

	c = raster.NewColor(2, 2)
	c.Fill(image.Rect(0, 0, 2, 2), sky)
	writeLabels(t, filepath.Join(root, "0002.png"), c)

	stats, err := runner(t, Options{}).Convert(context.Background(), root, labels.RUGD, labels.RELLIS)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Succeeded != 2 || stats.Recolored != 8 {
		t.Errorf("stats = %+v", stats)
	}

	got, err := raster.LoadColor(filepath.Join(root, "0001.png"))
	if err != nil {
		t.Fatal(err)
	}
	if got.At(0, 0) != (labels.Color{R: 170, G: 170, B: 170}) || got.At(0, 3) != grass {
		t.Errorf("pixels = %v %v", got.At(0, 0), got.At(0, 3))
	}
}

func TestParseInput(t *testing.T) {
	if in, err := ParseInput(""); err != nil || in != InputColor {
		t.Errorf("ParseInput(\"\") = %q, %v", in, err)
	}
	if in, err := ParseInput("instance-ids"); err != nil || in != InputInstanceIDs {
		t.Errorf("ParseInput = %q, %v", in, err)
	}
	if _, err := ParseInput("jpeg"); err == nil {
		t.Error("expected error")
	}
}
