// ninep-serve exports an in-memory file tree over 9P2000, as a bring-up
// target for the client and the ninep-mount shell.
package main

import (
	"log"
	"net"

	"github.com/flightstack/ninep2000/fileserver"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	user    = kingpin.Flag("user", "user that owns /").Short('u').Default("ninep").String()
	group   = kingpin.Flag("group", "group that owns /").Short('g').Default("ninep").String()
	address = kingpin.Arg("address", "address to listen on").Required().String()
)

func main() {
	kingpin.Parse()

	root := fileserver.NewRAMTree("/", 0o777, *user, *group)
	l, err := net.Listen("tcp", *address)
	if err != nil {
		log.Fatalf("Unable to listen: %v", err)
	}

	log.Printf("Starting ramfs at %s", *address)
	for {
		conn, err := l.Accept()
		if err != nil {
			log.Printf("Error: %v", err)
			return
		}

		f := fileserver.New(conn, root, fileserver.Chatty)
		go f.Serve()
	}
}
