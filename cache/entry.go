package cache

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// entryMagic identifies an entry file. The value is shared with other
// implementations of the same store, so it must not change.
const entryMagic uint32 = 0x20150306

// Entry is a cached response body together with its freshness metadata.
// All timestamps are unix epoch milliseconds.
type Entry struct {
	// Data is the raw response body.
	Data []byte
	// ETag of the stored response, empty if the server sent none.
	ETag string
	// ServerDate is the Date header of the stored response.
	ServerDate int64
	// LastModified is the Last-Modified header of the stored response.
	LastModified int64
	// TTL is the hard expiry: after this time the entry must not be
	// served without revalidation.
	TTL int64
	// SoftTTL is the soft expiry: after this time the entry needs a
	// refresh but may still be served once.
	SoftTTL int64
	// ResponseHeaders holds the headers of the stored response.
	ResponseHeaders map[string]string
}

// IsExpired reports whether the entry is past its hard TTL.
func (e *Entry) IsExpired() bool {
	return time.Now().UnixMilli() > e.TTL
}

// RefreshNeeded reports whether the entry is past its soft TTL.
func (e *Entry) RefreshNeeded() bool {
	return time.Now().UnixMilli() > e.SoftTTL
}

// clone returns a shallow copy sharing Data and ResponseHeaders.
func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// EncodeEntry serializes the entry under the given key into the
// little-endian on-disk layout: magic, key, nullable etag, four int64
// timestamps, header count and pairs, then the raw data to end of file.
func EncodeEntry(key string, e *Entry) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, entryMagic)
	writeString(buf, key)
	writeString(buf, e.ETag)
	writeInt64(buf, e.ServerDate)
	writeInt64(buf, e.LastModified)
	writeInt64(buf, e.TTL)
	writeInt64(buf, e.SoftTTL)
	names := make([]string, 0, len(e.ResponseHeaders))
	for name := range e.ResponseHeaders {
		names = append(names, name)
	}
	// headers are a map in memory, keep the file deterministic
	sort.Strings(names)
	writeUint32(buf, uint32(len(names)))
	for _, name := range names {
		writeString(buf, name)
		writeString(buf, e.ResponseHeaders[name])
	}
	buf.Write(e.Data)
	return buf.Bytes()
}

// DecodeEntry parses the on-disk layout produced by EncodeEntry and
// returns the key the entry was stored under together with the entry.
func DecodeEntry(b []byte) (string, *Entry, error) {
	r := bytes.NewReader(b)
	magic, err := readUint32(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read entry magic")
	}
	if magic != entryMagic {
		return "", nil, errors.Errorf("bad entry magic %#x", magic)
	}
	key, err := readString(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read entry key")
	}
	e := &Entry{}
	if e.ETag, err = readString(r); err != nil {
		return "", nil, errors.Wrap(err, "failed to read etag")
	}
	for _, dst := range []*int64{&e.ServerDate, &e.LastModified, &e.TTL, &e.SoftTTL} {
		if *dst, err = readInt64(r); err != nil {
			return "", nil, errors.Wrap(err, "failed to read entry timestamps")
		}
	}
	count, err := readUint32(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read header count")
	}
	e.ResponseHeaders = make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to read header name")
		}
		value, err := readString(r)
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to read header value")
		}
		e.ResponseHeaders[name] = value
	}
	e.Data = make([]byte, r.Len())
	if _, err := io.ReadFull(r, e.Data); err != nil {
		return "", nil, errors.Wrap(err, "failed to read entry data")
	}
	return key, e, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", errors.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
