/*
 * mrc.go, part of emprep.
 *
 * Copyright 2012 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package mrc reads and writes density maps in the MRC2014 format, the format the simulator
//reads its particle maps from. Files whose name ends in ".zst" are transparently compressed
//with z-standard.
package mrc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rmera/emprep"
	"gonum.org/v1/gonum/stat"
)

//HeaderSize is the size in bytes of the fixed MRC header.
const HeaderSize = 1024

//Data modes.
const (
	ModeInt8    int32 = 0
	ModeInt16   int32 = 1
	ModeFloat32 int32 = 2
	ModeUint16  int32 = 6
)

//Header is the fixed 1024-byte MRC2014 header. The fields follow the order in the file.
type Header struct {
	NX, NY, NZ                int32 //columns, rows, sections
	Mode                      int32
	NXStart, NYStart, NZStart int32
	MX, MY, MZ                int32      //sampling along each axis of the unit cell
	CellA                     [3]float32 //cell dimensions, A
	CellB                     [3]float32 //cell angles, degrees
	MapC, MapR, MapS          int32      //axis corresponding to columns, rows and sections (1,2,3 for x,y,z)
	DMin, DMax, DMean         float32
	ISPG                      int32
	NSymBT                    int32 //bytes of extended header
	Extra                     [100]byte
	Origin                    [3]float32
	Map                       [4]byte //"MAP "
	MachSt                    [4]byte
	RMS                       float32
	NLabl                     int32
	Labels                    [10][80]byte
}

//VoxelSize returns the voxel size along x in A. A header without cell information gives 1.
func (H *Header) VoxelSize() float64 {
	if H.MX <= 0 || H.CellA[0] <= 0 {
		return 1
	}
	return float64(H.CellA[0]) / float64(H.MX)
}

//Shape returns the dimensions of the map, slowest axis first (z, y, x).
func (H *Header) Shape() []int {
	return []int{int(H.NZ), int(H.NY), int(H.NX)}
}

//Label returns the n-th text label of the header, without padding.
func (H *Header) Label(n int) string {
	if n < 0 || n >= int(H.NLabl) || n >= len(H.Labels) {
		return ""
	}
	return strings.TrimRight(string(H.Labels[n][:]), " \x00")
}

func modeSize(mode int32) int {
	switch mode {
	case ModeInt8:
		return 1
	case ModeInt16, ModeUint16:
		return 2
	case ModeFloat32:
		return 4
	}
	return 0
}

//byteOrder guesses the endianness of a raw header. The machine stamp decides when present,
//otherwise the one order that gives a sensible mode and size is used.
func byteOrder(raw []byte) binary.ByteOrder {
	switch raw[212] {
	case 0x44:
		return binary.LittleEndian
	case 0x11:
		return binary.BigEndian
	}
	sane := func(o binary.ByteOrder) bool {
		mode := int32(o.Uint32(raw[12:]))
		nx := int32(o.Uint32(raw[0:]))
		return modeSize(mode) > 0 && nx > 0 && nx < 1<<20
	}
	if !sane(binary.LittleEndian) && sane(binary.BigEndian) {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

//Decode reads a map from r. Modes 0, 1, 2 and 6 are supported, in either byte order. The
//extended header, if any, is skipped. The returned volume has shape (z, y, x).
func Decode(r io.Reader) (*emprep.Volume, *Header, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, &Error{"Can't read header: " + err.Error(), "", []string{"Decode"}, true}
	}
	order := byteOrder(raw)
	H := new(Header)
	if err := binary.Read(bytes.NewReader(raw), order, H); err != nil {
		return nil, nil, &Error{"Malformed header: " + err.Error(), "", []string{"Decode"}, true}
	}
	size := modeSize(H.Mode)
	if size == 0 {
		return nil, nil, &Error{fmt.Sprintf("Unsupported data mode %d", H.Mode), "", []string{"Decode"}, true}
	}
	if H.NX <= 0 || H.NY <= 0 || H.NZ <= 0 {
		return nil, nil, &Error{fmt.Sprintf("Invalid dimensions %d x %d x %d", H.NX, H.NY, H.NZ), "", []string{"Decode"}, true}
	}
	if H.MapC != 0 && (H.MapC != 1 || H.MapR != 2 || H.MapS != 3) {
		return nil, nil, &Error{fmt.Sprintf("Unsupported axis order %d %d %d", H.MapC, H.MapR, H.MapS), "", []string{"Decode"}, true}
	}
	if H.NSymBT > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(H.NSymBT)); err != nil {
			return nil, nil, &Error{"Can't skip extended header: " + err.Error(), "", []string{"Decode"}, true}
		}
	}
	V := emprep.NewVolume(H.Shape()...)
	buf := make([]byte, V.Len()*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, &Error{"Truncated data: " + err.Error(), "", []string{"Decode"}, true}
	}
	for i := range V.Data {
		b := buf[i*size:]
		switch H.Mode {
		case ModeInt8:
			V.Data[i] = float64(int8(b[0]))
		case ModeInt16:
			V.Data[i] = float64(int16(order.Uint16(b)))
		case ModeUint16:
			V.Data[i] = float64(order.Uint16(b))
		case ModeFloat32:
			V.Data[i] = float64(math.Float32frombits(order.Uint32(b)))
		}
	}
	return V, H, nil
}

//NewHeader returns a little-endian, mode 2 header for V, with the given voxel size (A) and
//the statistics of the data. Volumes with fewer than 3 dimensions get leading axes of length 1.
func NewHeader(V *emprep.Volume, voxelSize float64) (*Header, error) {
	if len(V.Shape) > 3 {
		return nil, &Error{fmt.Sprintf("Can't store a %d-dimensional volume", len(V.Shape)), "", []string{"NewHeader"}, true}
	}
	if !(voxelSize > 0) {
		return nil, emprep.NewInputError("voxel size", voxelSize, "must be positive", "NewHeader")
	}
	shape := []int{1, 1, 1}
	copy(shape[3-len(V.Shape):], V.Shape)
	H := new(Header)
	H.NZ, H.NY, H.NX = int32(shape[0]), int32(shape[1]), int32(shape[2])
	H.MX, H.MY, H.MZ = H.NX, H.NY, H.NZ
	H.Mode = ModeFloat32
	H.CellA = [3]float32{float32(float64(H.NX) * voxelSize), float32(float64(H.NY) * voxelSize), float32(float64(H.NZ) * voxelSize)}
	H.CellB = [3]float32{90, 90, 90}
	H.MapC, H.MapR, H.MapS = 1, 2, 3
	H.ISPG = 1
	if H.NZ == 1 {
		H.ISPG = 0 //a single image
	}
	binary.LittleEndian.PutUint32(H.Extra[12:], 20140) //NVERSION, word 28
	H.Map = [4]byte{'M', 'A', 'P', ' '}
	H.MachSt = [4]byte{0x44, 0x44, 0, 0}
	mean, rms := stat.PopMeanStdDev(V.Data, nil)
	H.DMin, H.DMax = float32(V.Min()), float32(V.Max())
	H.DMean, H.RMS = float32(mean), float32(rms)
	H.NLabl = 1
	copy(H.Labels[0][:], "emprep")
	return H, nil
}

//Encode writes V as a mode 2 map with the given voxel size in A.
func Encode(w io.Writer, V *emprep.Volume, voxelSize float64) error {
	H, err := NewHeader(V, voxelSize)
	if err != nil {
		return emprep.ErrDecorate(err, "Encode")
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, H); err != nil {
		return &Error{"Can't write header: " + err.Error(), "", []string{"Encode"}, true}
	}
	var b [4]byte
	for _, v := range V.Data {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		bw.Write(b[:])
	}
	if err := bw.Flush(); err != nil {
		return &Error{"Can't write data: " + err.Error(), "", []string{"Encode"}, true}
	}
	return nil
}

func compressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zst")
}

//Read reads the map in the file name, decompressing it if the name ends in ".zst".
func Read(name string) (*emprep.Volume, *Header, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, &Error{err.Error(), name, []string{"Read"}, true}
	}
	defer f.Close()
	var r io.Reader = f
	if compressed(name) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, &Error{"Can't start decompression: " + err.Error(), name, []string{"Read"}, true}
		}
		defer dec.Close()
		r = dec
	}
	V, H, err := Decode(bufio.NewReader(r))
	if err != nil {
		e := err.(*Error)
		e.filename = name
		e.deco = append(e.deco, "Read")
		return nil, nil, e
	}
	return V, H, nil
}

//Write writes V to the file name as a mode 2 map, compressing it if the name ends in ".zst".
//An existing file is handled according to P. It returns the name actually written.
func Write(name string, V *emprep.Volume, voxelSize float64, P emprep.Policy) (string, error) {
	path, err := emprep.WriteFile(name, P, func(w io.Writer) error {
		if !compressed(name) {
			return Encode(w, V, voxelSize)
		}
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return &Error{"Can't start compression: " + err.Error(), name, []string{"Write"}, true}
		}
		if err := Encode(enc, V, voxelSize); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return &Error{err.Error(), name, []string{"Write"}, true}
		}
		return nil
	})
	if err != nil {
		return "", emprep.ErrDecorate(err, "Write")
	}
	return path, nil
}

//Error is the error type of the package. It fulfills emprep.Error.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
}

func (err *Error) Error() string {
	if err.filename == "" {
		return "mrc: " + err.message
	}
	return fmt.Sprintf("mrc file %s: %s", err.filename, err.message)
}

//Decorate adds information to the error. Since Error is a value, the addition is only
//seen in the returned slice.
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

//Critical returns true if the error is fatal for the operation that returned it.
func (err *Error) Critical() bool {
	return err.critical
}
