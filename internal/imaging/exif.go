package imaging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1

	tagOrientation = 0x0112
)

var exifHeader = []byte("Exif\x00\x00")

// readEXIF はJPEGファイルからExifのAPP1セグメント（マーカーと長さを含む）を取り出す。
// JPEGでない場合やExifを持たない場合はnilを返す。
// 画素は自動回転済みで書き出すため、Orientationタグは1（回転なし）に書き換える。
func readEXIF(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil || soi[0] != 0xFF || soi[1] != markerSOI {
		return nil, nil
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, nil
		}
		if b != 0xFF {
			return nil, nil
		}
		marker, err := r.ReadByte()
		for err == nil && marker == 0xFF {
			marker, err = r.ReadByte()
		}
		if err != nil {
			return nil, nil
		}
		switch {
		case marker == markerSOS || marker == markerEOI:
			return nil, nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, nil
		}
		length := int(binary.BigEndian.Uint16(lenBuf[:]))
		if length < 2 {
			return nil, nil
		}
		payload := make([]byte, length-2)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil
		}

		if marker == markerAPP1 && bytes.HasPrefix(payload, exifHeader) {
			resetOrientation(payload[len(exifHeader):])
			seg := make([]byte, 0, length+2)
			seg = append(seg, 0xFF, markerAPP1)
			seg = append(seg, lenBuf[:]...)
			return append(seg, payload...), nil
		}
	}
}

// resetOrientation はTIFF構造のIFD0にあるOrientationタグを1に書き換える。
// 構造が壊れている場合は何もしない。
func resetOrientation(tiff []byte) {
	if len(tiff) < 8 {
		return
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return
	}
	count := int(order.Uint16(tiff[ifd : ifd+2]))
	for i := 0; i < count; i++ {
		entry := ifd + 2 + i*12
		if entry+12 > len(tiff) {
			return
		}
		if order.Uint16(tiff[entry:entry+2]) == tagOrientation {
			order.PutUint16(tiff[entry+8:entry+10], 1)
			return
		}
	}
}

// encodeJPEGWithEXIF はJPEGでエンコードし、SOI直後にExifセグメントを差し込む。
func encodeJPEGWithEXIF(w io.Writer, img image.Image, quality int, exif []byte) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return fmt.Errorf("encoded JPEG has no SOI marker")
	}
	for _, part := range [][]byte{data[:2], exif, data[2:]} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}
