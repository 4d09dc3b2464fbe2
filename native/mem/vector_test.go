package mem

import (
	"testing"

	"github.com/wippyai/gdal-async/native"
)

func TestLayers(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("/vsimem/roads", 1, 1, 0, native.Byte, 0, 0)

	l, err := d.CreateLayer(ds, "roads")
	if err != nil {
		t.Fatalf("CreateLayer failed: %v", err)
	}
	if again, _ := d.Layer(ds, "roads"); again != l {
		t.Fatal("Layer handle must be stable")
	}
	if _, err := d.CreateLayer(ds, "roads"); err == nil {
		t.Fatal("Expected duplicate layer error")
	}

	fid, err := d.AddFeature(l, native.Feature{Fields: map[string]any{"name": "A1"}, WKT: "LINESTRING (0 0,1 1)"})
	if err != nil || fid != 1 {
		t.Fatalf("Expected FID 1, got %d (%v)", fid, err)
	}
	if _, err := d.AddFeature(l, native.Feature{FID: 10}); err != nil {
		t.Fatalf("AddFeature with FID failed: %v", err)
	}
	if _, err := d.AddFeature(l, native.Feature{FID: 10}); err == nil {
		t.Fatal("Expected duplicate FID error")
	}
	fid, _ = d.AddFeature(l, native.Feature{})
	if fid != 11 {
		t.Fatalf("Expected next FID 11, got %d", fid)
	}

	f, err := d.Feature(l, 1)
	if err != nil || f.Fields["name"] != "A1" {
		t.Fatalf("Unexpected feature %+v (%v)", f, err)
	}
	f.Fields["name"] = "mutated"
	f, _ = d.Feature(l, 1)
	if f.Fields["name"] != "A1" {
		t.Fatal("Feature must be returned by copy")
	}

	var fids []int64
	_ = d.Features(l, func(f native.Feature) bool {
		fids = append(fids, f.FID)
		return true
	})
	if len(fids) != 3 || fids[0] != 1 || fids[1] != 10 || fids[2] != 11 {
		t.Fatalf("Expected FID order [1 10 11], got %v", fids)
	}

	// Features survive close and reopen.
	_ = d.Close(ds)
	ds, _ = d.Open("/vsimem/roads", native.Update)
	l, err = d.Layer(ds, "roads")
	if err != nil {
		t.Fatalf("Layer after reopen failed: %v", err)
	}
	if n, _ := d.FeatureCount(l); n != 3 {
		t.Fatalf("Expected 3 features, got %d", n)
	}

	if err := d.DeleteLayer(ds, "roads"); err != nil {
		t.Fatalf("DeleteLayer failed: %v", err)
	}
	if _, err := d.FeatureCount(l); err == nil {
		t.Fatal("Layer handle must be invalid after delete")
	}
	if n, _ := d.LayerCount(ds); n != 0 {
		t.Fatalf("Expected 0 layers, got %d", n)
	}
}
