package runlog

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const runLogFileName = "log"

// Log lines longer than this fail parsing. Payloads are small marshaled
// records, so this leaves plenty of headroom.
const maxLogLine = 4 * 1024 * 1024

var errLogTruncated = errors.New("run log ends mid message")

// File backed RunLog. Each run gets its own directory under the root with a
// single line oriented log file in it:
//
//	RunAdmitted               DeviceFinished
//	<base64 entry>            <device id>
//	DeviceStarted             <base64 result>
//	<device id>               RunEnded
//	                          <base64 result>
//
// Every write is synced so the log survives a crash. A torn final record is
// tolerated on read; anything else unparseable is reported as corruption.
type fileRunLog struct {
	dir string
}

func MakeFileRunLog(dir string) (RunLog, error) {
	log.Infof("Making file run log in dir: %s", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "error creating run log dir %s", dir)
	}
	return &fileRunLog{dir: dir}, nil
}

func (rl *fileRunLog) runDir(entryId string) string {
	return filepath.Join(rl.dir, entryId)
}

func (rl *fileRunLog) logFile(entryId string) string {
	return filepath.Join(rl.runDir(entryId), runLogFileName)
}

func (rl *fileRunLog) StartRun(entryId string, entry []byte) error {
	if err := os.MkdirAll(rl.runDir(entryId), 0755); err != nil {
		return errors.Wrapf(err, "error creating run dir for entry %s", entryId)
	}

	record, err := encodeMessage(MakeRunAdmittedMessage(entryId, entry))
	if err != nil {
		return err
	}

	f, err := os.OpenFile(rl.logFile(entryId), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "error creating run log for entry %s", entryId)
	}
	defer f.Close()

	return writeRecord(f, entryId, record)
}

func (rl *fileRunLog) LogMessage(msg RunMessage) error {
	if _, err := os.Stat(rl.logFile(msg.EntryId)); os.IsNotExist(err) {
		return fmt.Errorf("run %s is not started yet", msg.EntryId)
	}

	record, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(rl.logFile(msg.EntryId), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "error opening run log for entry %s", msg.EntryId)
	}
	defer f.Close()

	return writeRecord(f, msg.EntryId, record)
}

func writeRecord(f *os.File, entryId string, record string) error {
	if _, err := f.WriteString(record); err != nil {
		return errors.Wrapf(err, "error writing run log for entry %s", entryId)
	}
	return errors.Wrapf(f.Sync(), "error syncing run log for entry %s", entryId)
}

func (rl *fileRunLog) GetMessages(entryId string) ([]RunMessage, error) {
	f, err := os.Open(rl.logFile(entryId))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error opening run log for entry %s", entryId)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(nil, maxLogLine)

	var msgs []RunMessage
	for scanner.Scan() {
		msg, err := parseMessage(entryId, scanner.Text(), scanner)
		if err == errLogTruncated {
			// Crash between WriteString and Sync. Everything before the torn
			// record is intact.
			log.Warnf("Run log for entry %s has a torn final record, ignoring it", entryId)
			return msgs, nil
		}
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading run log for entry %s", entryId)
	}
	return msgs, nil
}

func (rl *fileRunLog) GetActiveRuns() ([]string, error) {
	entries, err := os.ReadDir(rl.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing run log dir %s", rl.dir)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func encodeMessage(msg RunMessage) (string, error) {
	switch msg.MsgType {
	case RunAdmitted:
		return fmt.Sprintf("%s\n%s\n", msg.MsgType, encodePayload(msg.Data)), nil
	case DeviceStarted:
		return fmt.Sprintf("%s\n%s\n", msg.MsgType, msg.DeviceId), nil
	case DeviceFinished:
		return fmt.Sprintf("%s\n%s\n%s\n", msg.MsgType, msg.DeviceId, encodePayload(msg.Data)), nil
	case RunEnded:
		return fmt.Sprintf("%s\n%s\n", msg.MsgType, encodePayload(msg.Data)), nil
	default:
		return "", fmt.Errorf("unrecognized message type %v for entry %s", msg.MsgType, msg.EntryId)
	}
}

func encodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func parseMessage(entryId string, tag string, scanner *bufio.Scanner) (RunMessage, error) {
	switch tag {
	case RunAdmitted.String():
		data, err := scanPayload(entryId, scanner)
		if err != nil {
			return RunMessage{}, err
		}
		return MakeRunAdmittedMessage(entryId, data), nil

	case DeviceStarted.String():
		deviceId, err := scanLine(entryId, scanner)
		if err != nil {
			return RunMessage{}, err
		}
		return MakeDeviceStartedMessage(entryId, deviceId), nil

	case DeviceFinished.String():
		deviceId, err := scanLine(entryId, scanner)
		if err != nil {
			return RunMessage{}, err
		}
		data, err := scanPayload(entryId, scanner)
		if err != nil {
			return RunMessage{}, err
		}
		return MakeDeviceFinishedMessage(entryId, deviceId, data), nil

	case RunEnded.String():
		data, err := scanPayload(entryId, scanner)
		if err != nil {
			return RunMessage{}, err
		}
		return MakeRunEndedMessage(entryId, data), nil

	default:
		return RunMessage{}, NewCorruptedLogError(entryId, fmt.Sprintf("unrecognized message type %q", tag))
	}
}

func scanPayload(entryId string, scanner *bufio.Scanner) ([]byte, error) {
	line, err := scanLine(entryId, scanner)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return nil, NewCorruptedLogError(entryId, fmt.Sprintf("bad payload encoding: %s", err))
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func scanLine(entryId string, scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errors.Wrapf(err, "error reading run log for entry %s", entryId)
		}
		return "", errLogTruncated
	}
	return scanner.Text(), nil
}
