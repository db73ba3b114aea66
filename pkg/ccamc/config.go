package ccamc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/herohde/ccamc/pkg/ccerr"
)

// hashFamily identifies the content-hashing algorithm a store directory was
// created with. Only one family exists today, but the marker guards against
// silently opening a store whose blobs were hashed with a different family.
// The engine version string is written but not checked on reopen.
const hashFamily = "xxhash64"

const configMagic = "CCMD"

// writeOrVerifyConfig stamps dir's "config" marker file with the current
// engine version string and hash family on first creation, or verifies an
// existing marker is compatible with this build on reopen.
func writeOrVerifyConfig(dir string) error {
	path := dir + "/config"

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return ccerr.New(ccerr.IOError, "ccamc.writeOrVerifyConfig", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "ccamc.writeOrVerifyConfig", err)
	}

	verStr := fmt.Sprintf("%v", version)

	if fi.Size() == 0 {
		buf := make([]byte, 4+2+len(verStr)+2+len(hashFamily))
		copy(buf[0:4], configMagic)
		binary.LittleEndian.PutUint16(buf[4:6], uint16(len(verStr)))
		copy(buf[6:], verStr)
		off := 6 + len(verStr)
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(hashFamily)))
		copy(buf[off+2:], hashFamily)
		if _, err := f.WriteAt(buf, 0); err != nil {
			return ccerr.New(ccerr.IOError, "ccamc.writeOrVerifyConfig", err)
		}
		return nil
	}

	buf := make([]byte, fi.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return ccerr.New(ccerr.IOError, "ccamc.writeOrVerifyConfig", err)
	}
	if len(buf) < 6 || string(buf[0:4]) != configMagic {
		return ccerr.Newf(ccerr.IntegrityError, "ccamc.writeOrVerifyConfig", "bad config marker in %v", path)
	}
	verLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	off := 6 + verLen
	if len(buf) < off+2 {
		return ccerr.Newf(ccerr.IntegrityError, "ccamc.writeOrVerifyConfig", "truncated config marker in %v", path)
	}
	familyLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	if len(buf) < off+2+familyLen || string(buf[off+2:off+2+familyLen]) != hashFamily {
		return ccerr.Newf(ccerr.IntegrityError, "ccamc.writeOrVerifyConfig", "store %v uses an incompatible hash family", dir)
	}
	return nil
}
