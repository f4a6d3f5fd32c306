package bytecode

import "fmt"

// Verify checks that a finalized unit is well formed: every instruction
// decodes, every jump lands on an instruction boundary, and every path into
// an instruction arrives with the same stack depth, which never goes
// negative. Nested units are verified too.
func Verify(u *Unit) error {
	var err error
	u.Walk(func(unit *Unit) {
		if err == nil {
			err = verifyUnit(unit)
		}
	})
	return err
}

func verifyUnit(u *Unit) error {
	insns := make(map[int]Instruction)
	r := NewReader(u.Code)
	for r.HasMore() {
		in, err := r.Decode()
		if err != nil {
			return fmt.Errorf("verify %s: %w", u.Name, err)
		}
		insns[in.Pos] = in
	}

	depth := make(map[int]int)
	var work []int
	enter := func(pos, d int, from int) error {
		if _, ok := insns[pos]; !ok {
			if pos == len(u.Code) {
				return fmt.Errorf("verify %s: control falls off the end from %04d", u.Name, from)
			}
			return fmt.Errorf("verify %s: %04d targets %04d, not an instruction", u.Name, from, pos)
		}
		if prev, ok := depth[pos]; ok {
			if prev != d {
				return fmt.Errorf("verify %s: depth at %04d is %d and %d", u.Name, pos, prev, d)
			}
			return nil
		}
		depth[pos] = d
		work = append(work, pos)
		return nil
	}

	if len(u.Code) > 0 {
		if err := enter(0, 0, 0); err != nil {
			return err
		}
	}
	for _, h := range u.Handlers {
		if h.Start > h.End || h.End > len(u.Code) {
			return fmt.Errorf("verify %s: bad handler range [%d, %d)", u.Name, h.Start, h.End)
		}
		if err := enter(h.Target, h.Depth+1, h.Start); err != nil {
			return err
		}
	}

	for len(work) > 0 {
		pos := work[len(work)-1]
		work = work[:len(work)-1]
		in := insns[pos]
		d := depth[pos] + in.Effect()
		if d < 0 {
			return fmt.Errorf("verify %s: stack underflow at %04d %s", u.Name, pos, in.Op)
		}
		info := in.Op.Info()
		if info.Jump {
			if err := enter(in.Target(), d, pos); err != nil {
				return err
			}
		}
		if !info.Terminator {
			if err := enter(in.Next, d, pos); err != nil {
				return err
			}
		}
	}
	return nil
}
