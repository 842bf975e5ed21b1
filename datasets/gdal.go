package datasets

import (
	"context"
	"sync"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"github.com/airbusgeo/godal"
)

var registerDrivers sync.Once

// gdalSource reads one band of a raster file window by window. The file is
// opened on first read and reads are serialized, since a GDAL dataset
// handle is not safe for concurrent use.
type gdalSource struct {
	path          string
	band          int
	height, width int
	dtype         raster.DType

	mu sync.Mutex
	ds *godal.Dataset
}

// rasterInfo describes the first band of a raster file.
type rasterInfo struct {
	height, width int
	dtype         raster.DType
	nodata        float64
	hasNoData     bool
	transform     [6]float64
	hasTransform  bool
	projection    string
}

func openRaster(path string) (*godal.Dataset, error) {
	registerDrivers.Do(godal.RegisterAll)
	ds, err := godal.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open raster %s", path)
	}
	if len(ds.Bands()) == 0 {
		_ = ds.Close()
		return nil, errors.NewValueError("openRaster", "raster "+path+" has no bands")
	}
	return ds, nil
}

func inspectRaster(path string) (rasterInfo, error) {
	ds, err := openRaster(path)
	if err != nil {
		return rasterInfo{}, err
	}
	defer ds.Close()

	band := ds.Bands()[0]
	st := band.Structure()
	info := rasterInfo{
		height:     st.SizeY,
		width:      st.SizeX,
		dtype:      fromGDALType(st.DataType),
		projection: ds.Projection(),
	}
	info.nodata, info.hasNoData = band.NoData()
	if gt, err := ds.GeoTransform(); err == nil {
		info.transform, info.hasTransform = gt, true
	}
	return info, nil
}

// coords returns pixel-center coordinates from the affine geotransform.
func (ri rasterInfo) coords() (y, x []float64) {
	gt := ri.transform
	y = make([]float64, ri.height)
	for i := range y {
		y[i] = gt[3] + (float64(i)+0.5)*gt[5]
	}
	x = make([]float64, ri.width)
	for j := range x {
		x[j] = gt[0] + (float64(j)+0.5)*gt[1]
	}
	return y, x
}

func fromGDALType(dt godal.DataType) raster.DType {
	switch dt {
	case godal.Byte:
		return raster.Uint8
	case godal.UInt16:
		return raster.Uint16
	case godal.Int16:
		return raster.Int16
	case godal.UInt32:
		return raster.Uint32
	case godal.Int32:
		return raster.Int32
	case godal.Float32:
		return raster.Float32
	default:
		return raster.Float64
	}
}

func newGDALSource(path string, info rasterInfo) *gdalSource {
	return &gdalSource{path: path, height: info.height, width: info.width, dtype: info.dtype}
}

func (s *gdalSource) Shape() (int, int, int) { return 1, s.height, s.width }
func (s *gdalSource) DType() raster.DType    { return s.dtype }

func (s *gdalSource) Read(ctx context.Context, w raster.Window) (*raster.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ds == nil {
		ds, err := openRaster(s.path)
		if err != nil {
			return nil, err
		}
		s.ds = ds
	}
	buf := make([]float64, w.Width*w.Height)
	if err := s.ds.Bands()[s.band].Read(w.Col, w.Row, buf, w.Width, w.Height); err != nil {
		return nil, errors.Wrapf(err, "read %s window %v", s.path, w)
	}
	return raster.NewArray(1, w.Height, w.Width, buf).WithDType(s.dtype), nil
}

// Close releases the file handle, if one is open.
func (s *gdalSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil
	}
	err := s.ds.Close()
	s.ds = nil
	return err
}

// readRaster reads the whole first band of a raster file.
func readRaster(ctx context.Context, path string) (*raster.Array, error) {
	info, err := inspectRaster(path)
	if err != nil {
		return nil, err
	}
	src := newGDALSource(path, info)
	defer src.Close()
	return src.Read(ctx, raster.Full(info.height, info.width))
}
