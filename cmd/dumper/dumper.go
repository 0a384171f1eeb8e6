package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"cuview/config"
	"cuview/drivers"
	"cuview/ecus"
	"cuview/events"
	"cuview/romdefs"
	"cuview/ssm"
)

// dumper prints the identification replies stored in capture files.
func main() {
	cu := flag.String("cu", "engine", "control unit the capture was taken from")
	romDefs := flag.String("rom-defs", "", "path to a RomRaider log_defs.xml")
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatalf("usage: dumper [-cu engine] [-rom-defs log_defs.xml] CUDATA.bin...")
	}

	kind, err := ecus.ParseKind(*cu)
	if err != nil {
		log.Fatalf("bad -cu: %v", err)
	}

	var defs *romdefs.Definitions
	if *romDefs != "" {
		if defs, err = romdefs.Load(*romDefs); err != nil {
			log.Fatalf("couldn't load rom definitions: %v", err)
		}
	}
	identifier := drivers.NewIdentifier(kind, defs, events.NewHub(), &config.Flags{})

	for _, path := range flag.Args() {
		if err := dump(path, identifier); err != nil {
			log.Fatalf("%s: %v", path, err)
		}
	}
}

func dump(path string, identifier *drivers.Identifier) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Printf("# %s\n", path)
	return drivers.ReadCapture(file, func(record drivers.CaptureRecord) error {
		if record.Tag != ssm.CmdGetCUData {
			fmt.Printf("%10.3fs tag 0x%04X % X\n", float64(record.Millis)/1000, record.Tag, record.Data)
			return nil
		}
		data, err := ssm.ParseCUData(record.Data)
		if err != nil {
			fmt.Printf("%10.3fs %v\n", float64(record.Millis)/1000, err)
			return nil
		}
		id := identifier.Describe(data).Identification
		fmt.Printf("%10.3fs sys %s rom %s (%s) %q memory blocks %d switches %d flags % X\n",
			float64(record.Millis)/1000, data.SysIDHex(), id.RomID, data.RomIDASCII(), id.SystemType,
			id.MemoryBlocks, id.Switches, data.Flagbytes)
		return nil
	})
}
