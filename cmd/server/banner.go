package main

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"hooklens/internal/config"
	"hooklens/internal/server"

	"github.com/gookit/color"
)

// baseURL 은 배너에 보여줄 주소. 모든 인터페이스에 바인드했으면 localhost 로 표시한다.
func baseURL(cfg config.Config) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

func printBanner(w io.Writer, cfg config.Config) {
	title := color.New(color.FgCyan, color.OpBold).Render
	label := color.New(color.FgGray).Render
	url := color.New(color.FgGreen).Render

	base := baseURL(cfg)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", title("hooklens · webhook debugger"))
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 44))
	fmt.Fprintf(w, "  %s  %s\n", label("GUI    "), url(base+"/"))
	fmt.Fprintf(w, "  %s  %s  %s\n", label("Webhook"), url(base+"/webhook"), label(strings.Join(server.WebhookMethods, " ")))
	fmt.Fprintf(w, "  %s  %s\n", label("Stream "), url(base+"/events"))
	if cfg.ArchiveEnabled() {
		fmt.Fprintf(w, "  %s  %s\n", label("Archive"), url("s3://"+cfg.ArchiveBucket+"/"+cfg.ArchivePrefix))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Press Ctrl+C to stop the server")
	fmt.Fprintln(w)
}
