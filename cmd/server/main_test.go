package main

import (
	"net"
	"net/http"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
)

func TestRunExitCodes(t *testing.T) {
	for scenario, tc := range map[string]struct {
		args []string
		want int
	}{
		"help":              {[]string{"--help"}, exitOK},
		"port out of range": {[]string{"--port", "70000"}, exitUsage},
		"not an ip":         {[]string{"--server-addr", "not.an.ip"}, exitUsage},
		"unknown flag":      {[]string{"--tls"}, exitUsage},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.want, run(tc.args))
		})
	}
}

func TestRunBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	require.Equal(t, exitServe, run([]string{"--port", port}))
}

func TestRunExitsCleanOnSIGTERM(t *testing.T) {
	port := strconv.Itoa(dynaport.Get(1)[0])
	done := make(chan int, 1)
	go func() {
		done <- run([]string{"--port", port})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case code := <-done:
		require.Equal(t, exitOK, code)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not exit after SIGTERM")
	}
}
