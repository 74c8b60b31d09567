// Command hamerc compiles a .hmr source file to AArch64 assembly and can
// optionally execute the result on the built-in machine.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hamer/pkg/compiler"
	"hamer/pkg/cpu"
)

var (
	outPath    string
	runProgram bool
	dumpTokens bool
	dumpAST    bool
	dumpSyms   bool
)

var rootCmd = &cobra.Command{
	Use:          "hamerc <file.hmr>",
	Short:        "compile a .hmr source file to AArch64 assembly",
	Args:         cobra.ExactArgs(1),
	RunE:         compile,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&outPath, "output", "o", "out.s",
		"output assembly file")
	rootCmd.Flags().BoolVar(&runProgram, "run", false,
		"execute the compiled program on the built-in machine")
	rootCmd.Flags().BoolVar(&dumpTokens, "tokens", false,
		"dump the token stream to stdout")
	rootCmd.Flags().BoolVar(&dumpAST, "ast", false,
		"dump the parsed statement list to stdout")
	rootCmd.Flags().BoolVar(&dumpSyms, "symbols", false,
		"dump the symbol table after generation")
}

func compile(cmd *cobra.Command, args []string) error {
	srcPath := args[0]
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(srcPath)
	stdout := cmd.OutOrStdout()

	fmt.Fprintln(stdout, "[hamer] tokenizing...")
	tokens := compiler.Lex(string(src))
	if dumpTokens {
		fmt.Fprint(stdout, compiler.FormatTokens(tokens))
	}

	fmt.Fprintln(stdout, "[hamer] parsing...")
	stmts := compiler.Parse(tokens, baseDir)
	if dumpAST {
		fmt.Fprint(stdout, compiler.FormatAST(stmts))
	}

	fmt.Fprintln(stdout, "[hamer] generating AArch64 assembly...")
	syms := compiler.NewSymbolTable()
	gen := compiler.NewCodeGen(syms, baseDir)
	asm, err := gen.Generate(stmts)
	if err != nil {
		return fmt.Errorf("%s: %w", srcPath, err)
	}
	if dumpSyms {
		fmt.Fprint(stdout, syms.String())
	}

	if err := os.WriteFile(outPath, []byte(asm), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "compiled %s to %s\n", srcPath, outPath)

	if runProgram {
		machine := cpu.New()
		machine.Output = cmd.OutOrStdout()
		if err := machine.Load(asm); err != nil {
			return err
		}
		if err := machine.Run(); err != nil {
			return err
		}
		if machine.ExitCode != 0 {
			os.Exit(int(machine.ExitCode))
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
