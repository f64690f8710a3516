package ibus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	textTypeName     = "IBusText"
	attrListTypeName = "IBusAttrList"
)

// serializedText is the wire form of IBusText: (sa{sv}sv).
type serializedText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	Attributes  dbus.Variant
}

// serializedAttrList is the wire form of IBusAttrList: (sa{sv}av).
type serializedAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

// ErrNotText is returned when a variant does not hold a serialized IBusText.
var ErrNotText = errors.New("ibus: variant is not an IBusText")

// EncodeText wraps s in a variant holding an IBusText with no attributes.
func EncodeText(s string) dbus.Variant {
	return dbus.MakeVariant(serializedText{
		Name:        textTypeName,
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		Attributes: dbus.MakeVariant(serializedAttrList{
			Name:        attrListTypeName,
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// DecodeText extracts the string from a variant holding an IBusText.
// Attributes are ignored.
func DecodeText(v dbus.Variant) (string, error) {
	switch val := v.Value().(type) {
	case serializedText:
		return val.Text, nil
	case []interface{}:
		if len(val) < 3 {
			return "", fmt.Errorf("%w: struct has %d fields", ErrNotText, len(val))
		}
		if name, ok := val[0].(string); !ok || name != textTypeName {
			return "", fmt.Errorf("%w: type name %v", ErrNotText, val[0])
		}
		text, ok := val[2].(string)
		if !ok {
			return "", fmt.Errorf("%w: text field is %T", ErrNotText, val[2])
		}
		return text, nil
	case string:
		// Some clients send plain strings.
		return val, nil
	default:
		return "", fmt.Errorf("%w: got %s", ErrNotText, v.Signature())
	}
}
