package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
)

func handleCompletion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("completion", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: modshelf completion [bash|zsh|fish]")
	}
	switch shell := fs.Arg(0); shell {
	case "bash":
		fmt.Fprint(stdout, bashCompletion)
	case "zsh":
		fmt.Fprint(stdout, zshCompletion)
	case "fish":
		fmt.Fprint(stdout, fishCompletion)
	default:
		return fmt.Errorf("unknown shell: %s", shell)
	}
	return nil
}

const bashCompletion = `# bash completion for modshelf
_modshelf_completions()
{
    local cur prev words cword
    _init_completion || return
    local cmds="tui scan list status enrich link doctor config completion version help"
    if [[ ${cword} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "${cmds}" -- "$cur") )
        return
    fi
    case ${words[1]} in
        tui)
            COMPREPLY=( $(compgen -W "--config --log-level --json --no-mouse" -- "$cur") ) ;;
        scan)
            COMPREPLY=( $(compgen -W "--config --log-level --json --prune" -- "$cur") ) ;;
        list)
            COMPREPLY=( $(compgen -W "--config --log-level --json --type --favorites --tag --sort --limit" -- "$cur") ) ;;
        status)
            COMPREPLY=( $(compgen -W "--config --log-level --json" -- "$cur") ) ;;
        enrich)
            COMPREPLY=( $(compgen -W "--config --log-level --json --force --type" -- "$cur") ) ;;
        link)
            COMPREPLY=( $(compgen -W "--config --log-level --json --type --path --mode --dry-run" -- "$cur") ) ;;
        doctor)
            COMPREPLY=( $(compgen -W "--config --verbose" -- "$cur") ) ;;
        config)
            COMPREPLY=( $(compgen -W "validate print wizard --config --log-level --json --out" -- "$cur") ) ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- "$cur") ) ;;
        *) ;;
    esac
}
complete -F _modshelf_completions modshelf
`

const zshCompletion = `#compdef modshelf
# zsh completion for modshelf (basic)
_modshelf() {
  local -a cmds
  cmds=(tui scan list status enrich link doctor config completion version help)
  if (( CURRENT == 2 )); then
    _describe 'command' cmds
    return
  fi
  case $words[2] in
    tui)
      _arguments '*:options:(--config --log-level --json --no-mouse)'
      ;;
    scan)
      _arguments '*:options:(--config --log-level --json --prune)'
      ;;
    list)
      _arguments '*:options:(--config --log-level --json --type --favorites --tag --sort --limit)'
      ;;
    status)
      _arguments '*:options:(--config --log-level --json)'
      ;;
    enrich)
      _arguments '*:options:(--config --log-level --json --force --type)'
      ;;
    link)
      _arguments '*:options:(--config --log-level --json --type --path --mode --dry-run)'
      ;;
    doctor)
      _arguments '*:options:(--config --verbose)'
      ;;
    config)
      _arguments '*:options:(validate print wizard --config --log-level --json --out)'
      ;;
    completion)
      _arguments '*:options:(bash zsh fish)'
      ;;
  esac
}
compdef _modshelf modshelf
`

const fishCompletion = `# fish completion for modshelf
complete -c modshelf -f -n "__fish_use_subcommand" -a "tui" -d "library browser"
complete -c modshelf -f -n "__fish_use_subcommand" -a "scan" -d "index model files"
complete -c modshelf -f -n "__fish_use_subcommand" -a "list" -d "list models"
complete -c modshelf -f -n "__fish_use_subcommand" -a "status" -d "library statistics"
complete -c modshelf -f -n "__fish_use_subcommand" -a "enrich" -d "CivitAI lookups by hash"
complete -c modshelf -f -n "__fish_use_subcommand" -a "link" -d "link models into apps"
complete -c modshelf -f -n "__fish_use_subcommand" -a "doctor" -d "diagnostics"
complete -c modshelf -f -n "__fish_use_subcommand" -a "config" -d "config ops"
complete -c modshelf -f -n "__fish_use_subcommand" -a "completion" -d "shell completions"
complete -c modshelf -f -n "__fish_use_subcommand" -a "version" -d "print version"

# Common flags
for cmd in tui scan list status enrich link config
  complete -c modshelf -n "__fish_seen_subcommand_from $cmd" -l config -d "Path to config"
  complete -c modshelf -n "__fish_seen_subcommand_from $cmd" -l log-level -d "Log level"
  complete -c modshelf -n "__fish_seen_subcommand_from $cmd" -l json -d "JSON output"
end
complete -c modshelf -n "__fish_seen_subcommand_from tui" -l no-mouse -d "Disable mouse input"
complete -c modshelf -n "__fish_seen_subcommand_from scan" -l prune -d "Drop missing files"
complete -c modshelf -n "__fish_seen_subcommand_from list" -l type -d "Model type"
complete -c modshelf -n "__fish_seen_subcommand_from list" -l favorites -d "Only favorites"
complete -c modshelf -n "__fish_seen_subcommand_from list" -l tag -d "Only this tag"
complete -c modshelf -n "__fish_seen_subcommand_from list" -l sort -d "name|size|type|modified"
complete -c modshelf -n "__fish_seen_subcommand_from list" -l limit -d "Maximum rows"
complete -c modshelf -n "__fish_seen_subcommand_from enrich" -l force -d "Refresh existing sidecars"
complete -c modshelf -n "__fish_seen_subcommand_from enrich" -l type -d "Model type"
complete -c modshelf -n "__fish_seen_subcommand_from link" -l type -d "Model type"
complete -c modshelf -n "__fish_seen_subcommand_from link" -l path -d "File to link"
complete -c modshelf -n "__fish_seen_subcommand_from link" -l mode -d "symlink|hardlink|copy"
complete -c modshelf -n "__fish_seen_subcommand_from link" -l dry-run -d "Print planned destinations"
complete -c modshelf -n "__fish_seen_subcommand_from doctor" -l verbose -d "Show timings"
complete -c modshelf -n "__fish_seen_subcommand_from config" -a "validate print wizard"
complete -c modshelf -n "__fish_seen_subcommand_from config" -l out -d "Wizard output path"
`
