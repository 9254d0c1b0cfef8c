package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"

	smimecheck "github.com/mseverin/go-smimecheck"
)

// Exit status: 0 when every message verified, 1 when at least one verdict
// was negative, 2 on errors outside the verification contract.
const (
	exitOK = iota
	exitNotVerified
	exitError
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: smimecheck <command> [options]")
		fmt.Println("Commands: verify, diagnose, sign")
		os.Exit(exitError)
	}

	switch os.Args[1] {
	case "verify":
		verifyCmd(os.Args[2:])
	case "diagnose":
		diagnoseCmd(os.Args[2:])
	case "sign":
		signCmd(os.Args[2:])
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(exitError)
	}
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	in := fs.String("in", "", "Path to a raw .eml message")
	mboxPath := fs.String("mbox", "", "Path to an mbox file; verifies every message in it")
	id := fs.String("id", "", "Mail id attached to the verdict (default: the file name)")
	jsonOut := fs.Bool("json", false, "Print verdicts as JSON")
	margin := fs.Int("margin", 0, "Certificate validity margin in hours (default: built-in margin)")
	fs.Parse(args)

	verifier := smimecheck.NewVerifier()
	if *margin > 0 {
		verifier.Margin = time.Duration(*margin) * time.Hour
	}

	switch {
	case *mboxPath != "":
		os.Exit(verifyMbox(verifier, *mboxPath, *jsonOut))
	case *in != "":
		raw, err := os.ReadFile(*in)
		if err != nil {
			log.Fatal("Failed to read message:", err)
		}
		mailID := *id
		if mailID == "" {
			mailID = filepath.Base(*in)
		}
		result, err := verifier.Verify(raw, mailID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "verification error:", err)
			os.Exit(exitError)
		}
		printResult(result, *jsonOut)
		if !result.Success {
			os.Exit(exitNotVerified)
		}
	default:
		fs.Usage()
		os.Exit(exitError)
	}
}

// verifyMbox verifies every message of an mbox file and returns the exit
// status. Errors on individual messages do not stop the run.
func verifyMbox(verifier *smimecheck.Verifier, path string, jsonOut bool) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open mbox:", err)
		return exitError
	}
	defer f.Close()

	status := exitOK
	reader := mbox.NewReader(f)
	for i := 1; ; i++ {
		mr, err := reader.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "message %d: %v\n", i, err)
			status = exitError
			continue
		}
		raw, err := io.ReadAll(mr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "message %d: %v\n", i, err)
			status = exitError
			continue
		}

		mailID := fmt.Sprintf("%s#%d", filepath.Base(path), i)
		result, err := verifier.Verify(raw, mailID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "message %d: %v\n", i, err)
			status = exitError
			continue
		}
		printResult(result, jsonOut)
		if !result.Success && status == exitOK {
			status = exitNotVerified
		}
	}
	return status
}

func printResult(result *smimecheck.VerificationResult, jsonOut bool) {
	if jsonOut {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal("Failed to encode result:", err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("%s: %s\n", result.MailID, result.Code)
	fmt.Printf("  %s\n", result.Message)
	if result.Signer != "" {
		fmt.Printf("  signer: %s\n", result.Signer)
	}
}

func diagnoseCmd(args []string) {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	in := fs.String("in", "", "Path to a raw .eml message")
	jsonOut := fs.Bool("json", false, "Print the diagnosis as JSON")
	fs.Parse(args)

	if *in == "" {
		fs.Usage()
		os.Exit(exitError)
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal("Failed to read message:", err)
	}

	d, err := smimecheck.NewVerifier().Diagnose(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "diagnosis failed:", err)
		os.Exit(exitError)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			log.Fatal("Failed to encode diagnosis:", err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Println("signer:", d.Signer)
	for _, u := range d.OCSPServers {
		fmt.Println("ocsp responder:", u)
	}
	if d.OCSPRequest != nil {
		fmt.Printf("ocsp request: %d bytes\n", len(d.OCSPRequest))
	}
	fmt.Println("chain trusted:", d.ChainTrusted)
	if d.ChainDetail != "" {
		fmt.Println("  " + d.ChainDetail)
	}
}

func signCmd(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	certPath := fs.String("cert", "", "Path to the PEM signing certificate")
	keyPath := fs.String("key", "", "Path to the PEM private key")
	in := fs.String("in", "", "Path to the plain-text body")
	from := fs.String("from", "", "From address")
	to := fs.String("to", "", "To address")
	subject := fs.String("subject", "Signed message", "Subject line")
	out := fs.String("out", "", "Output file (default: stdout)")
	fs.Parse(args)

	if *certPath == "" || *keyPath == "" || *in == "" || *from == "" || *to == "" {
		fs.Usage()
		os.Exit(exitError)
	}

	cert, key, err := smimecheck.LoadCredentials(*certPath, *keyPath)
	if err != nil {
		log.Fatal("Failed to load credentials:", err)
	}
	body, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal("Failed to read body:", err)
	}

	signer := &smimecheck.Signer{Cert: cert, Key: key}
	raw, err := signer.CreateSignedMessage(*from, *to, *subject, smimecheck.TextPart(string(body)))
	if err != nil {
		log.Fatal("Failed to sign message:", err)
	}

	if *out == "" {
		os.Stdout.Write(raw)
		return
	}
	if err := os.WriteFile(*out, raw, 0644); err != nil {
		log.Fatal("Failed to write message:", err)
	}
}
