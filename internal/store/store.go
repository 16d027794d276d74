// Package store is a YAML-file-backed reference implementation of
// modemcore.Store, loaded with a Load(path) constructor that seeds
// defaults before Unmarshal. Each UMI code owns one YAML document holding
// either a single whole-object blob or a set of addressable member blobs,
// base64-encoded since UMI records are arbitrary binary.
package store

import (
	"encoding/base64"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/elster-meter/nbiotmodem"
)

type record struct {
	Object  string         `yaml:"object,omitempty"`
	Members map[int]string `yaml:"members,omitempty"`
}

type document struct {
	Codes map[string]*record `yaml:"codes"`
}

// Store is a file-backed modemcore.Store. All operations are safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Load reads path if it exists, or starts from an empty store if it does
// not (a fresh device has never had its UMI records written).
func Load(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Codes: map[string]*record{}}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading store file %q", path)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, errors.Wrapf(err, "parsing store file %q", path)
	}
	if s.doc.Codes == nil {
		s.doc.Codes = map[string]*record{}
	}
	return s, nil
}

func (s *Store) save() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return errors.Wrap(err, "marshaling store document")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing store file %q", s.path)
	}
	return nil
}

func (s *Store) recordFor(code modemcore.UmiCode) *record {
	key := codeKey(code)
	r, ok := s.doc.Codes[key]
	if !ok {
		r = &record{Members: map[int]string{}}
		s.doc.Codes[key] = r
	}
	if r.Members == nil {
		r.Members = map[int]string{}
	}
	return r
}

func codeKey(code modemcore.UmiCode) string {
	const hexDigits = "0123456789abcdef"
	b := [8]byte{}
	v := uint32(code)
	for i := 7; i >= 0; i-- {
		b[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(b[:])
}

// ReadConfigAll concatenates the whole-object blob (if any) followed by
// every member blob in ascending member order, and copies the result into
// buf.
func (s *Store) ReadConfigAll(code modemcore.UmiCode, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.doc.Codes[codeKey(code)]
	if !ok {
		return 0, nil
	}
	var all []byte
	if r.Object != "" {
		decoded, err := base64.StdEncoding.DecodeString(r.Object)
		if err != nil {
			return 0, err
		}
		all = append(all, decoded...)
	}
	members := make([]int, 0, len(r.Members))
	for m := range r.Members {
		members = append(members, m)
	}
	sort.Ints(members)
	for _, m := range members {
		decoded, err := base64.StdEncoding.DecodeString(r.Members[m])
		if err != nil {
			return 0, err
		}
		all = append(all, decoded...)
	}
	return copy(buf, all), nil
}

func (s *Store) WriteMember(code modemcore.UmiCode, member uint8, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordFor(code)
	cp := make([]byte, len(buf))
	copy(cp, buf)
	r.Members[int(member)] = base64.StdEncoding.EncodeToString(cp)
	return s.save()
}

func (s *Store) ReadMember(code modemcore.UmiCode, member uint8, out []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.doc.Codes[codeKey(code)]
	if !ok {
		return 0, nil
	}
	blob, ok := r.Members[int(member)]
	if !ok {
		return 0, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return 0, err
	}
	return copy(out, decoded), nil
}

func (s *Store) WriteObject(code modemcore.UmiCode, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordFor(code)
	cp := make([]byte, len(buf))
	copy(cp, buf)
	r.Object = base64.StdEncoding.EncodeToString(cp)
	return s.save()
}

func (s *Store) ReadObject(code modemcore.UmiCode, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.doc.Codes[codeKey(code)]
	if !ok || r.Object == "" {
		return 0, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(r.Object)
	if err != nil {
		return 0, err
	}
	return copy(buf, decoded), nil
}
