package mem

import (
	"maps"

	"github.com/google/btree"

	"github.com/wippyai/gdal-async/native"
)

// layerData is a vector layer at rest. It lives with its file, so features
// survive closing and reopening the dataset.
type layerData struct {
	features *btree.BTreeG[native.Feature]
	name     string
	nextFID  int64
}

type layer struct {
	ds     *dataset
	data   *layerData
	handle native.Handle
}

func newLayerData(name string) *layerData {
	return &layerData{
		name:    name,
		nextFID: 1,
		features: btree.NewG(16, func(a, b native.Feature) bool {
			return a.FID < b.FID
		}),
	}
}

func cloneFeature(f native.Feature) native.Feature {
	f.Fields = maps.Clone(f.Fields)
	return f
}

// LayerCount returns the number of vector layers.
func (d *Driver) LayerCount(h native.Handle) (int, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, err
	}
	return len(ds.file.layers), nil
}

// CreateLayer adds an empty layer.
func (d *Driver) CreateLayer(h native.Handle, name string) (native.Handle, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, err
	}
	if err := d.writable(ds, "CreateLayer"); err != nil {
		return 0, err
	}
	if err := d.enter(ds, "CreateLayer"); err != nil {
		return 0, err
	}
	defer d.leave(ds)

	if name == "" {
		return 0, failf(ErrIllegalArg, "CreateLayer(): layer name must not be empty")
	}
	if _, ok := ds.file.layers[name]; ok {
		return 0, failf(ErrAppDefined, "Layer %s already exists, CreateLayer failed.", name)
	}
	ds.file.layers[name] = newLayerData(name)
	ds.dirty = true
	return d.layerHandle(ds, name), nil
}

// Layer returns the handle of the named layer. The handle stays the same
// while the dataset is open.
func (d *Driver) Layer(h native.Handle, name string) (native.Handle, error) {
	ds, err := d.dataset(h)
	if err != nil {
		return 0, err
	}
	if err := d.enter(ds, "GetLayerByName"); err != nil {
		return 0, err
	}
	defer d.leave(ds)

	if _, ok := ds.file.layers[name]; !ok {
		return 0, failf(ErrObjectNull, "Layer %s not found", name)
	}
	return d.layerHandle(ds, name), nil
}

func (d *Driver) layerHandle(ds *dataset, name string) native.Handle {
	if lh, ok := ds.layers[name]; ok {
		return lh
	}
	l := &layer{ds: ds, data: ds.file.layers[name]}
	l.handle = d.table.create(kindLayer, l)
	ds.layers[name] = l.handle
	return l.handle
}

// DeleteLayer removes a layer and invalidates its handle.
func (d *Driver) DeleteLayer(h native.Handle, name string) error {
	ds, err := d.dataset(h)
	if err != nil {
		return err
	}
	if err := d.writable(ds, "DeleteLayer"); err != nil {
		return err
	}
	if err := d.enter(ds, "DeleteLayer"); err != nil {
		return err
	}
	defer d.leave(ds)

	if _, ok := ds.file.layers[name]; !ok {
		return failf(ErrObjectNull, "Layer %s not found", name)
	}
	delete(ds.file.layers, name)
	if lh, ok := ds.layers[name]; ok {
		d.table.drop(lh)
		delete(ds.layers, name)
	}
	ds.dirty = true
	return nil
}

// AddFeature stores f and returns its FID. A non-positive f.FID assigns the
// next free id.
func (d *Driver) AddFeature(h native.Handle, f native.Feature) (int64, error) {
	l, err := d.layer(h)
	if err != nil {
		return 0, err
	}
	if err := d.writable(l.ds, "CreateFeature"); err != nil {
		return 0, err
	}
	if err := d.enter(l.ds, "CreateFeature"); err != nil {
		return 0, err
	}
	defer d.leave(l.ds)

	if f.FID <= 0 {
		f.FID = l.data.nextFID
	} else if _, ok := l.data.features.Get(native.Feature{FID: f.FID}); ok {
		return 0, failf(ErrAppDefined, "Feature %d already exists", f.FID)
	}
	l.data.nextFID = max(l.data.nextFID, f.FID+1)
	l.data.features.ReplaceOrInsert(cloneFeature(f))
	l.ds.dirty = true
	return f.FID, nil
}

// Feature returns a copy of the feature with the given FID.
func (d *Driver) Feature(h native.Handle, fid int64) (native.Feature, error) {
	l, err := d.layer(h)
	if err != nil {
		return native.Feature{}, err
	}
	if err := d.enter(l.ds, "GetFeature"); err != nil {
		return native.Feature{}, err
	}
	defer d.leave(l.ds)

	f, ok := l.data.features.Get(native.Feature{FID: fid})
	if !ok {
		return native.Feature{}, failf(ErrObjectNull, "Feature %d not found", fid)
	}
	return cloneFeature(f), nil
}

// FeatureCount returns the number of features in a layer.
func (d *Driver) FeatureCount(h native.Handle) (int, error) {
	l, err := d.layer(h)
	if err != nil {
		return 0, err
	}
	if err := d.enter(l.ds, "GetFeatureCount"); err != nil {
		return 0, err
	}
	defer d.leave(l.ds)
	return l.data.features.Len(), nil
}

// Features calls fn for every feature in FID order until fn returns false.
func (d *Driver) Features(h native.Handle, fn func(native.Feature) bool) error {
	l, err := d.layer(h)
	if err != nil {
		return err
	}
	if err := d.enter(l.ds, "GetNextFeature"); err != nil {
		return err
	}
	defer d.leave(l.ds)

	l.data.features.Ascend(func(f native.Feature) bool {
		return fn(cloneFeature(f))
	})
	return nil
}

func (d *Driver) layer(h native.Handle) (*layer, error) {
	v, ok := d.table.get(h, kindLayer)
	if !ok {
		return nil, failf(ErrObjectNull, "Pointer 'hLayer' is NULL or invalid (handle %d)", h)
	}
	return v.(*layer), nil
}
