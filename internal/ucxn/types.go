package ucxn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// User is the subset of a Unity Connection user record this service needs.
type User struct {
	ObjectID            string `json:"ObjectId"`
	Alias               string `json:"Alias"`
	Extension           string `json:"DtmfAccessId"`
	CallHandlerObjectID string `json:"CallHandlerObjectId"`
}

// Greeting is the state of a call handler's alternate greeting.
type Greeting struct {
	Enabled     FlexBool `json:"Enabled"`
	TimeExpires string   `json:"TimeExpires"`
}

// FlexBool decodes the boolean encodings the Unity API mixes freely:
// true, "true" and "false".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		return fmt.Errorf("parsing boolean %q: %w", data, err)
	}
	*b = FlexBool(v)
	return nil
}

// userEnvelope handles the Unity list quirk: the User field is a JSON array
// for multi-result responses but a bare object when exactly one user matches.
type userEnvelope struct {
	Users []User
}

func (e *userEnvelope) UnmarshalJSON(data []byte) error {
	var multi struct {
		User []User `json:"User"`
	}
	if err := json.Unmarshal(data, &multi); err == nil {
		e.Users = multi.User
		return nil
	}

	var single struct {
		User User `json:"User"`
	}
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("parsing user response: %w", err)
	}
	e.Users = []User{single.User}
	return nil
}
