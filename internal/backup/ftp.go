package backup

import (
	"fmt"
	"os"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/evalboard/backend/internal/models"
)

// uploadToFTP copies a completed artifact to the configured FTP destination.
func uploadToFTP(settings *models.BackupSettings, localPath, filename string) error {
	addr := fmt.Sprintf("%s:%d", settings.FTPHost, settings.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("FTP connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(settings.FTPUsername, settings.FTPPassword); err != nil {
		return fmt.Errorf("FTP login failed: %w", err)
	}

	if settings.FTPPath != "" && settings.FTPPath != "/" {
		if err := conn.ChangeDir(settings.FTPPath); err != nil {
			conn.MakeDir(settings.FTPPath)
			if err := conn.ChangeDir(settings.FTPPath); err != nil {
				return fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %w", err)
	}
	return nil
}

// TestFTPConnection verifies FTP credentials and path access for the
// settings screen.
func TestFTPConnection(host string, port int, username, password, path string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if path != "" && path != "/" {
		if err := conn.ChangeDir(path); err != nil {
			if err := conn.MakeDir(path); err != nil {
				return fmt.Errorf("cannot access or create directory %s: %w", path, err)
			}
		}
	}
	return nil
}
