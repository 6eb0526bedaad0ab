// Package database holds the example objects published by the demo client:
// one device and one analog input whose value climbs once per second.
package database

import (
	"sync"
	"time"
)

// Defaults of the example objects.
const (
	DeviceInstance     uint32  = 389999
	DeviceName                 = "Device Rainbow"
	AnalogInputInitial float32 = 1.001
	AnalogInputStep    float32 = 1.001
	UpdateInterval             = time.Second
)

var colors = []string{
	"Amber", "Bronze", "Chartreuse", "Diamond", "Emerald", "Fuchsia", "Gold", "Hot Pink", "Indigo",
	"Kiwi", "Lilac", "Magenta", "Nickel", "Onyx", "Purple", "Quartz", "Red", "Silver", "Turquoise",
	"Umber", "Vermilion", "White", "Xanadu", "Yellow", "Zebra White", "Apricot", "Blueberry",
}

// Device is the device object.
type Device struct {
	Instance     uint32 `cbor:"instance" json:"instance"`
	ObjectName   string `cbor:"object_name" json:"object_name"`
	SystemStatus uint32 `cbor:"system_status" json:"system_status"`
}

// AnalogInput is the analog input object.
type AnalogInput struct {
	Instance     uint32  `cbor:"instance" json:"instance"`
	ObjectName   string  `cbor:"object_name" json:"object_name"`
	PresentValue float32 `cbor:"present_value" json:"present_value"`
	COVIncrement float32 `cbor:"cov_increment" json:"cov_increment"`
	Reliability  uint32  `cbor:"reliability" json:"reliability"`
}

// Snapshot is a point-in-time copy of the database.
type Snapshot struct {
	Device      Device      `cbor:"device" json:"device"`
	AnalogInput AnalogInput `cbor:"analog_input" json:"analog_input"`
	Timestamp   time.Time   `cbor:"timestamp" json:"timestamp"`
}

// Database is safe for concurrent use.
type Database struct {
	mu          sync.Mutex
	now         func() time.Time
	colorOffset int
	lastUpdate  time.Time
	device      Device
	analogInput AnalogInput
}

// Option configures a Database.
type Option func(*Database)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *Database) {
		db.now = now
	}
}

// New creates a database with its objects set up.
func New(opts ...Option) *Database {
	db := &Database{now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	db.Setup()
	return db
}

// Setup resets every object to its initial value. Each call names the
// analog input after the next colour.
func (db *Database) Setup() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.device = Device{
		Instance:   DeviceInstance,
		ObjectName: DeviceName,
	}
	db.analogInput = AnalogInput{
		Instance:     0,
		ObjectName:   "AnalogInput " + db.nextColor(),
		PresentValue: AnalogInputInitial,
		COVIncrement: 2,
	}
	db.lastUpdate = time.Time{}
}

// Loop advances the analog input by one step on the first call and then at
// most once per UpdateInterval. It reports whether a step was taken.
func (db *Database) Loop() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	if !db.lastUpdate.IsZero() && now.Sub(db.lastUpdate) < UpdateInterval {
		return false
	}
	db.lastUpdate = now
	db.analogInput.PresentValue += AnalogInputStep
	return true
}

// Snapshot returns a copy of the current objects.
func (db *Database) Snapshot() Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Snapshot{
		Device:      db.device,
		AnalogInput: db.analogInput,
		Timestamp:   db.now().UTC(),
	}
}

func (db *Database) nextColor() string {
	db.colorOffset++
	return colors[db.colorOffset%len(colors)]
}
