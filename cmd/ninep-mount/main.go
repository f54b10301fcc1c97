// ninep-mount is an interactive shell over a mounted 9P2000 file tree, the
// development harness used to bring up a new server before pointing
// embedded clients at it.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/flightstack/ninep2000/client"
	"github.com/flightstack/ninep2000/config"
	"github.com/flightstack/ninep2000/ninep"
	"github.com/flightstack/ninep2000/vfs"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	address = kingpin.Arg("address", "address to connect to (defaults to NINEP_IP:NINEP_PORT)").String()
	command = stringList(kingpin.Arg("command", "command to execute (disables interactive mode)"))
)

type slist []string

func (i *slist) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func (i *slist) String() string {
	return ""
}

func (i *slist) IsCumulative() bool {
	return true
}

func stringList(s kingpin.Settings) (target *[]string) {
	target = new([]string)
	s.SetValue((*slist)(target))
	return
}

func permToString(m ninep.FileMode) string {
	x := []byte("drwxrwxrwx")
	if m&ninep.DMDIR == 0 {
		x[0] = '-'
	}

	m = m & 0o777
	for idx := uint(0); idx < 9; idx++ {
		if m&(1<<(8-idx)) == 0 {
			x[idx+1] = '-'
		}
	}
	return string(x)
}

func main() {
	kingpin.Parse()

	addr := *address
	if addr == "" {
		cfg, err := config.Load()
		if err != nil {
			kingpin.Fatalf("%v", err)
		}
		if !cfg.Enable || cfg.IP == nil {
			kingpin.Fatalf("no address given and no enabled configuration in the environment")
		}
		addr = cfg.Addr()
	}

	s := client.NewSession(addr, log.New(os.Stderr, "", log.LstdFlags))
	s.Start()
	defer s.Stop()

	f := vfs.New(s)
	if err := f.Mount(10 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		return
	}

	confirmation, err := readline.New("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		return
	}
	confirm := func(s string) bool {
		confirmation.SetPrompt(fmt.Sprintf("%s [y]es, [n]o: ", s))
		l, err := confirmation.Readline()
		if err != nil {
			return false
		}

		switch l {
		default:
			fmt.Fprintf(os.Stderr, "Aborting\n")
			return false
		case "y", "yes":
			return true
		}
	}

	cwd := "/"
	resolve := func(s string) string {
		if len(s) > 0 && s[0] == '/' {
			return path.Clean(s)
		}
		return path.Join(cwd, s)
	}

	// readAll fetches a whole remote file.
	readAll := func(remote string) ([]byte, error) {
		fid, err := f.Walk(remote, vfs.File)
		if err != nil {
			return nil, err
		}
		defer f.Release(fid)
		if err := f.Open(fid, os.O_RDONLY); err != nil {
			return nil, err
		}

		var out []byte
		buf := make([]byte, f.MaxReadLen())
		var offset uint64
		for {
			n, err := f.ReadFile(fid, offset, buf)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return out, nil
			}
			out = append(out, buf[:n]...)
			offset += uint64(n)
		}
	}

	// writeNew creates remote and fills it with data. An existing file
	// must be removed first; create-then-write is also how truncation is
	// expressed.
	writeNew := func(remote string, data []byte) error {
		dir, base := path.Split(remote)
		fid, err := f.Walk(strings.TrimSuffix(dir, "/"), vfs.Directory)
		if err != nil {
			return err
		}
		defer f.Release(fid)
		if err := f.Create(fid, base, false); err != nil {
			return err
		}
		_, err = f.Write(fid, 0, data)
		return err
	}

	loop := true
	cmds := map[string]func(string) error{
		"ls": func(s string) error {
			entries, err := f.List(resolve(s))
			if err != nil {
				return err
			}

			// Directories first, then alphabetical.
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].IsDir != entries[j].IsDir {
					return entries[i].IsDir
				}
				return entries[i].Name < entries[j].Name
			})

			for _, e := range entries {
				kind := "-"
				if e.IsDir {
					kind = "d"
				}
				fmt.Printf("%s  %10d  %s  %s\n", kind, e.Length, time.Unix(int64(e.Mtime), 0).Format(time.Stamp), e.Name)
			}
			return nil
		},
		"cd": func(s string) error {
			target := resolve(s)
			fid, err := f.Walk(target, vfs.Directory)
			if err != nil {
				return err
			}
			f.Release(fid)
			cwd = target
			return nil
		},
		"pwd": func(string) error {
			fmt.Printf("%s\n", cwd)
			return nil
		},
		"cat": func(s string) error {
			data, err := readAll(resolve(s))
			if err != nil {
				return err
			}
			fmt.Printf("%s", data)
			fmt.Fprintf(os.Stderr, "\n")
			return nil
		},
		"get": func(s string) error {
			args, err := parseCommandLine(s)
			if err != nil {
				return err
			}
			cmd := kingpin.New("get", "")
			remote := cmd.Arg("remote", "remote filename").Required().String()
			local := cmd.Arg("local", "local filename").Required().String()
			if _, err = cmd.Parse(args); err != nil {
				return err
			}

			data, err := readAll(resolve(*remote))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Downloaded %s [%dB]\n", *remote, len(data))
			return os.WriteFile(*local, data, 0o644)
		},
		"put": func(s string) error {
			args, err := parseCommandLine(s)
			if err != nil {
				return err
			}
			cmd := kingpin.New("put", "")
			local := cmd.Arg("local", "local filename").Required().String()
			remote := cmd.Arg("remote", "remote filename").Required().String()
			if _, err = cmd.Parse(args); err != nil {
				return err
			}

			data, err := os.ReadFile(*local)
			if err != nil {
				return err
			}

			target := resolve(*remote)
			if fid, err := f.Walk(target, vfs.File); err == nil {
				if !confirm("File exists. Do you want to overwrite it?") {
					f.Release(fid)
					return nil
				}
				if err := f.Remove(fid); err != nil {
					return err
				}
			}

			fmt.Fprintf(os.Stderr, "Uploading: %s to %s [%dB]", *local, target, len(data))
			if err := writeNew(target, data); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, " - Done.\n")
			return nil
		},
		"mkdir": func(s string) error {
			target := resolve(s)
			dir, base := path.Split(target)
			fid, err := f.Walk(strings.TrimSuffix(dir, "/"), vfs.Directory)
			if err != nil {
				return err
			}
			defer f.Release(fid)
			return f.Create(fid, base, true)
		},
		"rm": func(s string) error {
			target := resolve(s)
			if !confirm(fmt.Sprintf("Are you sure you want to delete %s?", target)) {
				return nil
			}

			fid, err := f.Walk(target, vfs.Any)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Deleting %s\n", target)
			return f.Remove(fid)
		},
		"mv": func(s string) error {
			args, err := parseCommandLine(s)
			if err != nil {
				return err
			}
			cmd := kingpin.New("mv", "")
			source := cmd.Arg("source", "source filename").Required().String()
			destination := cmd.Arg("destination", "new name, within the same directory").Required().String()
			if _, err = cmd.Parse(args); err != nil {
				return err
			}

			fid, err := f.Walk(resolve(*source), vfs.Any)
			if err != nil {
				return err
			}
			defer f.Release(fid)
			return f.Rename(fid, path.Base(*destination))
		},
		"stat": func(s string) error {
			fid, err := f.Walk(resolve(s), vfs.Any)
			if err != nil {
				return err
			}
			defer f.Release(fid)
			st, err := f.Stat(fid)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %10d  %s  %s\n", permToString(st.Mode), st.Length, time.Unix(int64(st.Mtime), 0).Format(time.Stamp), st.Name)
			return nil
		},
		"touch": func(s string) error {
			fid, err := f.Walk(resolve(s), vfs.Any)
			if err != nil {
				return err
			}
			defer f.Release(fid)
			return f.SetMtime(fid, time.Now())
		},
		"quit": func(string) error {
			fmt.Fprintf(os.Stderr, "bye\n")
			loop = false
			return nil
		},
	}

	if len(*command) > 0 {
		cmdName := (*command)[0]
		args := strings.Join((*command)[1:], " ")

		fn, ok := cmds[cmdName]
		if !ok {
			fmt.Fprintf(os.Stderr, "no such command: [%s]\n", cmdName)
			return
		}
		if err := fn(args); err != nil {
			fmt.Fprintf(os.Stderr, "\ncommand %s failed: %v\n", cmdName, err)
		}
		return
	}

	completer := readline.NewPrefixCompleter()
	for k := range cmds {
		completer.Children = append(completer.Children, readline.PcItem(k))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "9p> ",
		AutoComplete: completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		return
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "Welcome to the 9P shell.\nPress tab to see available commands.\n")

	for loop {
		line, err := rl.Readline()
		if err != nil { // io.EOF
			break
		}

		idx := strings.Index(line, " ")
		var cmdName, args string
		if idx != -1 {
			cmdName = line[:idx]
			args = line[idx+1:]
		} else {
			cmdName = line
		}
		if cmdName == "" {
			continue
		}

		fn, ok := cmds[cmdName]
		if !ok {
			fmt.Fprintf(os.Stderr, "no such command: [%s]\n", cmdName)
			continue
		}
		if err := fn(args); err != nil && !errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintf(os.Stderr, "\ncommand %s failed: %v\n", cmdName, err)
		}
	}
}
