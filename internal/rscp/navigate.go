package rscp

import "fmt"

// Find returns the first item carrying tag.
func Find(items []Item, tag Tag) (Item, error) {
	for _, item := range items {
		if item.Tag == tag {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %s", ErrTagNotFound, tag)
}

// Children returns the nested items of the container carrying tag.
// A present item that is not a container yields an empty list; only
// an absent tag is an error.
func Children(items []Item, tag Tag) ([]Item, error) {
	item, err := Find(items, tag)
	if err != nil {
		return nil, err
	}
	return item.Value.Items(), nil
}

// findValue locates tag and rejects payload-less items.
func findValue(items []Item, tag Tag) (Value, error) {
	item, err := Find(items, tag)
	if err != nil {
		return Value{}, err
	}
	if item.Value.IsNone() {
		return Value{}, fmt.Errorf("%w: %s", ErrMissingValue, tag)
	}
	return item.Value, nil
}

// FindBool locates tag and coerces its value to a bool.
func FindBool(items []Item, tag Tag) (bool, error) {
	v, err := findValue(items, tag)
	if err != nil {
		return false, err
	}
	b, err := v.AsBool()
	if err != nil {
		return false, fmt.Errorf("tag %s: %w", tag, err)
	}
	return b, nil
}

// FindFloat64 locates tag and coerces its value to a float64.
func FindFloat64(items []Item, tag Tag) (float64, error) {
	v, err := findValue(items, tag)
	if err != nil {
		return 0, err
	}
	f, err := v.AsFloat64()
	if err != nil {
		return 0, fmt.Errorf("tag %s: %w", tag, err)
	}
	return f, nil
}

// FindUint64 locates tag and coerces its value to a uint64.
func FindUint64(items []Item, tag Tag) (uint64, error) {
	v, err := findValue(items, tag)
	if err != nil {
		return 0, err
	}
	u, err := v.AsUint64()
	if err != nil {
		return 0, fmt.Errorf("tag %s: %w", tag, err)
	}
	return u, nil
}

// FindString locates tag and coerces its value to a string.
func FindString(items []Item, tag Tag) (string, error) {
	v, err := findValue(items, tag)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("tag %s: %w", tag, err)
	}
	return s, nil
}
