// Package protodec decodes protobuf payloads against a directory of
// .proto files, without generated code. It backs the proto validation
// rule and payload rendering in the TUI.
package protodec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
)

// Decoder resolves message types parsed from a proto directory.
type Decoder struct {
	messageTypes map[string]*desc.MessageDescriptor
	allMessages  []*desc.MessageDescriptor
}

// New builds a decoder from every .proto file under protoDir. Parse
// failures are fatal: a scenario asserting against a broken schema should
// not run.
func New(protoDir string) (*Decoder, error) {
	var protoFiles []string
	err := filepath.Walk(protoDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".proto") {
			relPath, err := filepath.Rel(protoDir, path)
			if err != nil {
				relPath = path
			}
			protoFiles = append(protoFiles, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk proto dir: %w", err)
	}
	if len(protoFiles) == 0 {
		return nil, fmt.Errorf("no .proto files found in %s", protoDir)
	}

	parser := protoparse.Parser{
		ImportPaths: []string{protoDir},
	}

	var fds []*desc.FileDescriptor
	var parseErrs []error
	for _, pf := range protoFiles {
		fd, err := parser.ParseFiles(pf)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("%s: %w", pf, err))
			continue
		}
		fds = append(fds, fd...)
	}
	if len(parseErrs) > 0 {
		return nil, errors.Join(parseErrs...)
	}

	messageTypes := make(map[string]*desc.MessageDescriptor)
	var allMessages []*desc.MessageDescriptor
	for _, fd := range fds {
		for _, md := range fd.GetMessageTypes() {
			messageTypes[md.GetName()] = md
			messageTypes[md.GetFullyQualifiedName()] = md
			allMessages = append(allMessages, md)
		}
	}

	return &Decoder{
		messageTypes: messageTypes,
		allMessages:  allMessages,
	}, nil
}

// HasType reports whether typeName (short or fully qualified) is known.
func (d *Decoder) HasType(typeName string) bool {
	_, ok := d.messageTypes[typeName]
	return ok
}

// DecodeAs decodes data as the named message type and returns its
// populated fields.
func (d *Decoder) DecodeAs(data []byte, typeName string) (map[string]any, error) {
	md, ok := d.messageTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", typeName)
	}

	msg := dynamic.NewMessage(md)
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("unmarshal as %s: %w", typeName, err)
	}

	return messageToMap(msg), nil
}

// Decode tries every known message type and returns the decode with the
// most populated fields, plus the winning type name.
func (d *Decoder) Decode(data []byte) (map[string]any, string, error) {
	if d == nil || len(d.allMessages) == 0 {
		return nil, "", fmt.Errorf("no message types loaded")
	}

	var best *dynamic.Message
	var bestName string
	bestScore := 0

	for _, md := range d.allMessages {
		msg := dynamic.NewMessage(md)
		if err := msg.Unmarshal(data); err != nil {
			continue
		}
		score := countPopulatedFields(msg)
		if score > bestScore {
			bestScore = score
			best = msg
			bestName = md.GetName()
		}
	}

	if best == nil {
		return nil, "", fmt.Errorf("no known message type decodes this payload")
	}
	return messageToMap(best), bestName, nil
}

// ListTypes returns all known type names, sorted.
func (d *Decoder) ListTypes() []string {
	types := make([]string, 0, len(d.messageTypes))
	for name := range d.messageTypes {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

func countPopulatedFields(msg *dynamic.Message) int {
	count := 0
	for _, fd := range msg.GetKnownFields() {
		if msg.HasField(fd) {
			count++
		}
	}
	return count
}

func messageToMap(msg *dynamic.Message) map[string]any {
	result := make(map[string]any)
	for _, fd := range msg.GetKnownFields() {
		if !msg.HasField(fd) {
			continue
		}
		result[fd.GetName()] = convertValue(msg.GetField(fd))
	}
	return result
}

func convertValue(val any) any {
	switch v := val.(type) {
	case *dynamic.Message:
		return messageToMap(v)
	case []byte:
		if printable(v) {
			return string(v)
		}
		return fmt.Sprintf("0x%x", v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertValue(item)
		}
		return result
	default:
		return v
	}
}

func printable(data []byte) bool {
	for _, b := range data {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}
